// Package emotion tags utterances with a coarse affect label. It is a
// deliberate keyword heuristic, not an ML classifier: classification cost
// must stay negligible because it runs on every turn in the hot path.
package emotion

import (
	"strings"

	"github.com/simonepiga/synthpanel/internal/persona"
)

// Tag is one of the fixed affect labels.
type Tag string

const (
	Frustrated Tag = "frustrated"
	Excited    Tag = "excited"
	Confused   Tag = "confused"
	Worried    Tag = "worried"
	Happy      Tag = "happy"
	Angry      Tag = "angry"
	Neutral    Tag = "neutral"
)

// category order is significant: the first category with a substring hit
// wins, so reordering entries changes classification results.
var categories = []struct {
	tag      Tag
	keywords []string
}{
	{Frustrated, []string{"frustrat", "annoying", "fed up", "sick of", "this is ridiculous", "waste of time", "doesn't work", "not working"}},
	{Angry, []string{"angry", "furious", "hate", "terrible", "awful", "worst"}},
	{Confused, []string{"confus", "don't understand", "don't get it", "what does that mean", "makes no sense", "lost me", "unclear"}},
	{Worried, []string{"worri", "concern", "afraid", "nervous", "not sure about", "scares me", "risky"}},
	{Excited, []string{"excit", "amazing", "can't wait", "love this", "awesome", "incredible", "fantastic"}},
	{Happy, []string{"happy", "glad", "great", "nice", "pleased", "thank you", "thanks", "perfect"}},
}

// Detect classifies text against the fixed priority table. When an agent
// profile is supplied, its custom trigger phrases are consulted only after
// the fixed table misses; the final fallback is Neutral.
func Detect(text string, profile *persona.EmotionalProfile) Tag {
	lowered := strings.ToLower(text)

	for _, cat := range categories {
		for _, kw := range cat.keywords {
			if strings.Contains(lowered, kw) {
				return cat.tag
			}
		}
	}

	if profile != nil {
		for _, trigger := range profile.FrustrationTriggers {
			if trigger != "" && strings.Contains(lowered, strings.ToLower(trigger)) {
				return Frustrated
			}
		}
		for _, trigger := range profile.ExcitementTriggers {
			if trigger != "" && strings.Contains(lowered, strings.ToLower(trigger)) {
				return Excited
			}
		}
	}

	return Neutral
}
