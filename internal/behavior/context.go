package behavior

import (
	"strings"
	"time"
)

// TimeBucket is a coarse time-of-day classification used to bias speech
// imperfections (people ramble more late in the day).
type TimeBucket string

const (
	Morning   TimeBucket = "morning"
	Afternoon TimeBucket = "afternoon"
	Evening   TimeBucket = "evening"
	Night     TimeBucket = "night"
)

// BucketFor maps a clock time to its bucket.
func BucketFor(t time.Time) TimeBucket {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	case h >= 18 && h < 23:
		return Evening
	default:
		return Night
	}
}

// Context carries the conversational state the transform engine reads.
// UserText is the message the agent is replying to; trigger-phrase checks
// run against it, not against the agent's own reply.
type Context struct {
	TurnCount    int
	TimeOfDay    TimeBucket
	UserText     string
	UserConfused bool
	ContextAware bool
}

var hedgeWords = []string{
	"maybe", "i think", "i guess", "probably", "not sure", "perhaps",
	"i suppose", "kind of", "sort of",
}

// containsHedge reports whether the text hedges, which biases filler and
// self-correction probabilities upward.
func containsHedge(text string) bool {
	lowered := strings.ToLower(text)
	for _, h := range hedgeWords {
		if strings.Contains(lowered, h) {
			return true
		}
	}
	return false
}

var confusionMarkers = []string{
	"confus", "don't understand", "don't get", "what do you mean",
	"makes no sense", "unclear", "lost",
}

// SignalsConfusion is the keyword heuristic for whether a user message
// reads as confused.
func SignalsConfusion(text string) bool {
	lowered := strings.ToLower(text)
	for _, m := range confusionMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

func containsAny(text string, phrases []string) bool {
	lowered := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
