package behavior

import (
	"time"

	"github.com/simonepiga/synthpanel/internal/persona"
)

// Delay bounds are a correctness requirement, not tuning: the streaming
// layer schedules deliveries inside these windows and its timeout logic
// assumes them.
const (
	delayBase    = 800 * time.Millisecond
	DelayFloor   = 500 * time.Millisecond
	DelayCeiling = 8 * time.Second
	// Context-aware conversations stretch further because the
	// conversation-length factor compounds with the others.
	DelayCeilingContextAware = 12 * time.Second
)

var comprehensionMultiplier = map[persona.ComprehensionSpeed]float64{
	persona.ComprehensionSlow:   1.4,
	persona.ComprehensionMedium: 1.0,
	persona.ComprehensionFast:   0.7,
}

var baselineMultiplier = map[persona.Baseline]float64{
	persona.BaselinePositive:     0.9,
	persona.BaselineNeutral:      1.0,
	persona.BaselineNegative:     1.15,
	persona.BaselineAnxious:      1.25,
	persona.BaselineEnthusiastic: 0.8,
}

func patienceMultiplier(patience int) float64 {
	switch {
	case patience <= 3:
		return 0.85
	case patience <= 7:
		return 1.0
	default:
		return 1.2
	}
}

func complexityFactor(userText, reply string) float64 {
	n := len(userText) + len(reply)
	switch {
	case n < 80:
		return 0.8
	case n < 240:
		return 1.0
	case n < 480:
		return 1.3
	default:
		return 1.6
	}
}

func conversationLengthFactor(ctx Context) float64 {
	if !ctx.ContextAware {
		return 1.0
	}
	switch {
	case ctx.TurnCount < 4:
		return 1.0
	case ctx.TurnCount < 12:
		return 1.1
	default:
		return 1.25
	}
}

// ComputeDelay returns how long the agent "thinks" before its reply is
// delivered. Deterministic apart from the jitter term, which comes from the
// engine's injected random source.
func (e *Engine) ComputeDelay(a persona.Agent, userText, reply string, ctx Context) time.Duration {
	mult := comprehensionMultiplier[a.Cognitive.ComprehensionSpeed]
	if mult == 0 {
		mult = 1.0
	}
	base := baselineMultiplier[a.Emotional.Baseline]
	if base == 0 {
		base = 1.0
	}

	d := float64(delayBase)
	d *= mult
	d *= patienceMultiplier(a.Cognitive.Patience)
	d *= complexityFactor(userText, reply)
	d *= base
	d *= conversationLengthFactor(ctx)

	// Jitter of +/-25%.
	d *= 0.75 + e.roll()*0.5

	ceiling := DelayCeiling
	if ctx.ContextAware {
		ceiling = DelayCeilingContextAware
	}
	out := time.Duration(d)
	if out < DelayFloor {
		return DelayFloor
	}
	if out > ceiling {
		return ceiling
	}
	return out
}
