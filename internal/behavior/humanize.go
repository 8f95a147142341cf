package behavior

import (
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/simonepiga/synthpanel/internal/persona"
)

// Rand is the random source behind every probabilistic transform step.
// Tests inject a fixed sequence to make Humanize a pure function.
type Rand interface {
	Float64() float64
}

// Toggles enables individual probabilistic steps. The deterministic steps
// (substitution, sentence shaping) always run.
type Toggles struct {
	Fillers         bool
	SelfCorrections bool
	CommonPhrases   bool
	Punctuation     bool
}

// AllToggles is the production configuration.
func AllToggles() Toggles {
	return Toggles{Fillers: true, SelfCorrections: true, CommonPhrases: true, Punctuation: true}
}

// Engine turns raw model completions into persona-voiced utterances.
// Safe for use from concurrent pipelines; rng access is serialized.
type Engine struct {
	mu      sync.Mutex
	rng     Rand
	toggles Toggles
}

func NewEngine(rng Rand, toggles Toggles) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng, toggles: toggles}
}

func (e *Engine) roll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) pick(n int) int {
	if n <= 1 {
		return 0
	}
	v := int(e.roll() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Humanize applies the transform steps in a fixed order; later steps operate
// on the output of earlier ones, so the order is part of the contract:
// vocabulary substitution, sentence shaping, filler insertion,
// self-correction, common-phrase injection, emotional punctuation.
func (e *Engine) Humanize(a persona.Agent, raw string, ctx Context) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return text
	}

	text = substituteAvoidWords(text, a.Voice.AvoidWords)
	text = shapeSentences(text, a.Voice.SentenceLength)
	if e.toggles.Fillers {
		text = e.insertFiller(text, a.Voice.FillerWords, ctx)
	}
	if e.toggles.SelfCorrections {
		text = e.insertSelfCorrection(text, a.Voice.SelfCorrection)
	}
	if e.toggles.CommonPhrases {
		text = e.injectCommonPhrase(text, a.Voice.CommonPhrases)
	}
	if e.toggles.Punctuation {
		text = applyEmotionalPunctuation(text, a.Emotional, ctx)
	}
	return text
}

// substituteAvoidWords replaces whole-word, case-insensitive occurrences of
// each avoided word with its plain-language mapping. Replacements are never
// themselves table keys (enforced at agent validation), so the substitution
// is idempotent. Keys are applied in sorted order; map iteration order must
// not leak into the output.
func substituteAvoidWords(text string, table map[string]string) string {
	if len(table) == 0 {
		return text
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, avoided := range keys {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(avoided) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, table[avoided])
	}
	return text
}

const longSentenceChars = 80

func shapeSentences(text string, pref persona.SentenceLength) string {
	switch pref {
	case persona.SentenceShort:
		return splitLongSentences(text)
	case persona.SentenceLong:
		return mergeShortSentences(text)
	default:
		return text
	}
}

// splitLongSentences breaks sentences over the threshold at their first
// comma past the midpoint, keeping clauses intact.
func splitLongSentences(text string) string {
	sentences := splitSentences(text)
	var out []string
	for _, s := range sentences {
		body, suffix := trimTerminator(s)
		if len(body) <= longSentenceChars {
			out = append(out, s)
			continue
		}
		cut := strings.Index(body[len(body)/2:], ", ")
		if cut < 0 {
			cut = strings.Index(body, ", ")
			if cut < 0 {
				out = append(out, s)
				continue
			}
		} else {
			cut += len(body) / 2
		}
		first := body[:cut] + ". "
		second := upperFirst(strings.TrimSpace(body[cut+2:]))
		out = append(out, first, second+suffix)
	}
	return strings.Join(out, "")
}

// mergeShortSentences joins adjacent short declarative sentences with a
// comma. Questions and exclamations keep their own sentence.
func mergeShortSentences(text string) string {
	sentences := splitSentences(text)
	var out []string
	for i := 0; i < len(sentences); i++ {
		cur := sentences[i]
		body, suffix := trimTerminator(cur)
		if i+1 < len(sentences) && len(body) < 40 && strings.HasPrefix(strings.TrimLeft(suffix, " "), ".") {
			nextBody, nextSuffix := trimTerminator(sentences[i+1])
			if len(nextBody) < 40 {
				out = append(out, body+", "+lowerFirst(nextBody)+nextSuffix)
				i++
				continue
			}
		}
		out = append(out, cur)
	}
	return strings.Join(out, "")
}

const (
	fillerBaseProbability   = 0.12
	fillerHedgeBias         = 0.08
	fillerLateDayBias       = 0.03
	selfCorrectionOccasions = 0.3
	selfCorrectionFrequent  = 0.5
	commonPhraseProbability = 0.25
)

// insertFiller prepends a filler word to one sentence, never mid-clause.
func (e *Engine) insertFiller(text string, fillers []string, ctx Context) string {
	if len(fillers) == 0 {
		return text
	}
	p := fillerBaseProbability
	if strings.Contains(text, "?") || containsHedge(text) {
		p += fillerHedgeBias
	}
	if ctx.TimeOfDay == Evening || ctx.TimeOfDay == Night {
		p += fillerLateDayBias
	}
	if e.roll() >= p {
		return text
	}

	filler := fillers[e.pick(len(fillers))]
	sentences := splitSentences(text)
	idx := e.pick(len(sentences))
	sentences[idx] = upperFirst(filler) + ", " + lowerFirst(sentences[idx])
	return strings.Join(sentences, "")
}

// insertSelfCorrection prepends a correction token to the first sentence
// only, gated on the profile tier and message complexity.
func (e *Engine) insertSelfCorrection(text string, tier persona.SelfCorrectionTier) string {
	var p float64
	switch tier {
	case persona.CorrectionOccasional:
		p = selfCorrectionOccasions
	case persona.CorrectionFrequent:
		p = selfCorrectionFrequent
	default:
		return text
	}
	complex := len(text) > 120 || containsHedge(text)
	if !complex {
		return text
	}
	if e.roll() >= p {
		return text
	}
	return "Actually, " + lowerFirst(text)
}

var firstPersonHedges = []string{"I think", "I feel", "I need", "I want"}

// injectCommonPhrase leads the sentence containing the first first-person
// hedge with one of the agent's signature phrases.
func (e *Engine) injectCommonPhrase(text string, phrases []string) string {
	if len(phrases) == 0 {
		return text
	}
	sentences := splitSentences(text)
	target := -1
	for i, s := range sentences {
		for _, h := range firstPersonHedges {
			if strings.Contains(s, h) {
				target = i
				break
			}
		}
		if target >= 0 {
			break
		}
	}
	if target < 0 {
		return text
	}
	if e.roll() >= commonPhraseProbability {
		return text
	}
	phrase := phrases[e.pick(len(phrases))]
	sentences[target] = upperFirst(phrase) + ", " + lowerFirst(sentences[target])
	return strings.Join(sentences, "")
}

// applyEmotionalPunctuation reacts to trigger phrases in the user's message:
// ellipses for frustration when the baseline is not positive, doubled
// exclamations for excitement when it is.
func applyEmotionalPunctuation(text string, emo persona.EmotionalProfile, ctx Context) string {
	if containsAny(ctx.UserText, emo.FrustrationTriggers) && emo.Baseline != persona.BaselinePositive {
		text = strings.ReplaceAll(text, ". ", "... ")
		if strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "...") {
			text = text[:len(text)-1] + "..."
		}
		return text
	}
	if containsAny(ctx.UserText, emo.ExcitementTriggers) && emo.Baseline == persona.BaselinePositive {
		text = strings.ReplaceAll(text, "!!", "!")
		text = strings.ReplaceAll(text, "!", "!!")
	}
	return text
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
