package persona

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("agent not found")

// SentenceLength is the agent's preferred sentence shape.
type SentenceLength string

const (
	SentenceShort  SentenceLength = "short"
	SentenceMedium SentenceLength = "medium"
	SentenceLong   SentenceLength = "long"
)

// SelfCorrectionTier controls how often the agent corrects itself mid-reply.
type SelfCorrectionTier string

const (
	CorrectionNever      SelfCorrectionTier = "never"
	CorrectionRare       SelfCorrectionTier = "rare"
	CorrectionOccasional SelfCorrectionTier = "occasional"
	CorrectionFrequent   SelfCorrectionTier = "frequent"
)

// ComprehensionSpeed is how quickly the agent processes a message.
type ComprehensionSpeed string

const (
	ComprehensionSlow   ComprehensionSpeed = "slow"
	ComprehensionMedium ComprehensionSpeed = "medium"
	ComprehensionFast   ComprehensionSpeed = "fast"
)

// Baseline is the agent's resting emotional state.
type Baseline string

const (
	BaselinePositive     Baseline = "positive"
	BaselineNeutral      Baseline = "neutral"
	BaselineNegative     Baseline = "negative"
	BaselineAnxious      Baseline = "anxious"
	BaselineEnthusiastic Baseline = "enthusiastic"
)

// VoiceProfile shapes how the agent phrases its replies.
type VoiceProfile struct {
	SentenceLength       SentenceLength     `json:"sentence_length"`
	Formality            int                `json:"formality"`
	FillerWords          []string           `json:"filler_words"`
	CommonPhrases        []string           `json:"common_phrases"`
	SelfCorrection       SelfCorrectionTier `json:"self_correction"`
	VocabularyComplexity int                `json:"vocabulary_complexity"`
	AvoidWords           map[string]string  `json:"avoid_words"`
}

// CognitiveProfile shapes how fast and how patiently the agent responds.
type CognitiveProfile struct {
	ComprehensionSpeed ComprehensionSpeed `json:"comprehension_speed"`
	Patience           int                `json:"patience"`
}

// EmotionalProfile shapes the agent's affect and its trigger phrases.
type EmotionalProfile struct {
	Baseline            Baseline `json:"baseline"`
	FrustrationTriggers []string `json:"frustration_triggers"`
	ExcitementTriggers  []string `json:"excitement_triggers"`
}

// Agent is a synthetic persona. Identity is immutable after creation; the
// system prompt is compiled once and reused for every completion call.
type Agent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Occupation string    `json:"occupation"`
	Location   string    `json:"location"`

	Voice     VoiceProfile     `json:"voice"`
	Cognitive CognitiveProfile `json:"cognitive"`
	Emotional EmotionalProfile `json:"emotional"`

	SystemPrompt string    `json:"system_prompt"`
	Archived     bool      `json:"archived"`
	CreatedAt    time.Time `json:"created_at"`
}

// New builds an agent from a raw profile: defaults are filled in, the
// profile is validated, and the master system prompt is compiled once.
func New(name, occupation, location string, voice VoiceProfile, cog CognitiveProfile, emo EmotionalProfile) (Agent, error) {
	a := Agent{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		Occupation: strings.TrimSpace(occupation),
		Location:   strings.TrimSpace(location),
		Voice:      voice,
		Cognitive:  cog,
		Emotional:  emo,
		CreatedAt:  time.Now().UTC(),
	}
	ApplyDefaults(&a)
	if err := Validate(a); err != nil {
		return Agent{}, err
	}
	a.SystemPrompt = CompileSystemPrompt(a)
	return a, nil
}

// ApplyDefaults fills every optional sub-field so downstream code never
// needs "field may or may not exist" checks.
func ApplyDefaults(a *Agent) {
	if a.Voice.SentenceLength == "" {
		a.Voice.SentenceLength = SentenceMedium
	}
	if a.Voice.Formality == 0 {
		a.Voice.Formality = 5
	}
	if a.Voice.FillerWords == nil {
		a.Voice.FillerWords = []string{"um", "you know"}
	}
	if a.Voice.CommonPhrases == nil {
		a.Voice.CommonPhrases = []string{}
	}
	if a.Voice.SelfCorrection == "" {
		a.Voice.SelfCorrection = CorrectionRare
	}
	if a.Voice.VocabularyComplexity == 0 {
		a.Voice.VocabularyComplexity = 5
	}
	if a.Voice.AvoidWords == nil {
		a.Voice.AvoidWords = map[string]string{}
	}
	if a.Cognitive.ComprehensionSpeed == "" {
		a.Cognitive.ComprehensionSpeed = ComprehensionMedium
	}
	if a.Cognitive.Patience == 0 {
		a.Cognitive.Patience = 5
	}
	if a.Emotional.Baseline == "" {
		a.Emotional.Baseline = BaselineNeutral
	}
	if a.Emotional.FrustrationTriggers == nil {
		a.Emotional.FrustrationTriggers = []string{}
	}
	if a.Emotional.ExcitementTriggers == nil {
		a.Emotional.ExcitementTriggers = []string{}
	}
}

// Validate rejects profiles that would break the behavior engine's lookup
// tables downstream.
func Validate(a Agent) error {
	if a.Name == "" {
		return errors.New("agent name is required")
	}
	switch a.Voice.SentenceLength {
	case SentenceShort, SentenceMedium, SentenceLong:
	default:
		return fmt.Errorf("invalid sentence length %q", a.Voice.SentenceLength)
	}
	switch a.Voice.SelfCorrection {
	case CorrectionNever, CorrectionRare, CorrectionOccasional, CorrectionFrequent:
	default:
		return fmt.Errorf("invalid self-correction tier %q", a.Voice.SelfCorrection)
	}
	switch a.Cognitive.ComprehensionSpeed {
	case ComprehensionSlow, ComprehensionMedium, ComprehensionFast:
	default:
		return fmt.Errorf("invalid comprehension speed %q", a.Cognitive.ComprehensionSpeed)
	}
	switch a.Emotional.Baseline {
	case BaselinePositive, BaselineNeutral, BaselineNegative, BaselineAnxious, BaselineEnthusiastic:
	default:
		return fmt.Errorf("invalid emotional baseline %q", a.Emotional.Baseline)
	}
	if a.Voice.Formality < 1 || a.Voice.Formality > 10 {
		return fmt.Errorf("formality %d out of range 1-10", a.Voice.Formality)
	}
	if a.Voice.VocabularyComplexity < 1 || a.Voice.VocabularyComplexity > 10 {
		return fmt.Errorf("vocabulary complexity %d out of range 1-10", a.Voice.VocabularyComplexity)
	}
	if a.Cognitive.Patience < 1 || a.Cognitive.Patience > 10 {
		return fmt.Errorf("patience %d out of range 1-10", a.Cognitive.Patience)
	}
	for avoided, replacement := range a.Voice.AvoidWords {
		if _, clash := a.Voice.AvoidWords[strings.ToLower(replacement)]; clash {
			return fmt.Errorf("avoid-word replacement %q is itself an avoided word", replacement)
		}
		if strings.TrimSpace(avoided) == "" {
			return errors.New("avoid-word key must not be empty")
		}
	}
	return nil
}
