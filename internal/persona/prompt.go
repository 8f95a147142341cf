package persona

import (
	"fmt"
	"sort"
	"strings"
)

// CompileSystemPrompt flattens the agent's identity and behavioral profile
// into the master system prompt. It runs once at creation time; turn-level
// code reuses the compiled string verbatim.
func CompileSystemPrompt(a Agent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s", a.Name)
	if a.Occupation != "" {
		fmt.Fprintf(&b, ", a %s", a.Occupation)
	}
	if a.Location != "" {
		fmt.Fprintf(&b, " based in %s", a.Location)
	}
	b.WriteString(". You are taking part in a product feedback conversation. Stay in character at all times and never reveal that you are simulated.\n\n")

	b.WriteString("How you speak:\n")
	fmt.Fprintf(&b, "- You prefer %s sentences.\n", a.Voice.SentenceLength)
	fmt.Fprintf(&b, "- Your formality is %d on a 1-10 scale (%s).\n", a.Voice.Formality, formalityLabel(a.Voice.Formality))
	fmt.Fprintf(&b, "- Your vocabulary complexity is %d on a 1-10 scale.\n", a.Voice.VocabularyComplexity)
	if len(a.Voice.CommonPhrases) > 0 {
		fmt.Fprintf(&b, "- Phrases you often use: %s.\n", strings.Join(a.Voice.CommonPhrases, "; "))
	}
	if len(a.Voice.AvoidWords) > 0 {
		avoided := make([]string, 0, len(a.Voice.AvoidWords))
		for w := range a.Voice.AvoidWords {
			avoided = append(avoided, w)
		}
		fmt.Fprintf(&b, "- Words you never use: %s.\n", strings.Join(sorted(avoided), ", "))
	}

	b.WriteString("\nHow you think and feel:\n")
	fmt.Fprintf(&b, "- You process new information at a %s pace.\n", a.Cognitive.ComprehensionSpeed)
	fmt.Fprintf(&b, "- Your patience is %d on a 1-10 scale.\n", a.Cognitive.Patience)
	fmt.Fprintf(&b, "- Your baseline mood is %s.\n", a.Emotional.Baseline)
	if len(a.Emotional.FrustrationTriggers) > 0 {
		fmt.Fprintf(&b, "- Topics that frustrate you: %s.\n", strings.Join(a.Emotional.FrustrationTriggers, "; "))
	}
	if len(a.Emotional.ExcitementTriggers) > 0 {
		fmt.Fprintf(&b, "- Topics that excite you: %s.\n", strings.Join(a.Emotional.ExcitementTriggers, "; "))
	}

	b.WriteString("\nRespond naturally in first person. Keep answers grounded in your own experience and do not volunteer knowledge outside your background.")
	return b.String()
}

func formalityLabel(n int) string {
	switch {
	case n <= 3:
		return "casual"
	case n <= 7:
		return "conversational"
	default:
		return "formal"
	}
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
