package persona

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BehavioralSignals is the fixed schema returned by the external transcript
// analyzer. Every sub-object is optional on the wire; FromSignals applies
// safe defaults for anything the analyzer could not populate.
type BehavioralSignals struct {
	SpeechPatterns    SpeechPatterns    `json:"speech_patterns"`
	VocabularyProfile VocabularyProfile `json:"vocabulary_profile"`
	EmotionalSignals  EmotionalSignals  `json:"emotional_profile"`
	CognitiveSignals  CognitiveSignals  `json:"cognitive_profile"`
	Objectives        []string          `json:"objectives"`
	Fears             []string          `json:"fears"`
	KnowledgeBounds   []string          `json:"knowledge_bounds"`
}

type SpeechPatterns struct {
	SentenceLength     string   `json:"sentence_length"`
	Formality          int      `json:"formality"`
	FillerWords        []string `json:"filler_words"`
	CommonPhrases      []string `json:"common_phrases"`
	SelfCorrection     string   `json:"self_correction"`
}

type VocabularyProfile struct {
	Complexity int               `json:"complexity"`
	AvoidWords map[string]string `json:"avoid_words"`
}

type EmotionalSignals struct {
	Baseline            string   `json:"baseline"`
	FrustrationTriggers []string `json:"frustration_triggers"`
	ExcitementTriggers  []string `json:"excitement_triggers"`
}

type CognitiveSignals struct {
	ComprehensionSpeed string `json:"comprehension_speed"`
	Patience           int    `json:"patience"`
}

// ParseSignals decodes an analyzer payload. Unknown keys are ignored;
// missing keys decode to zero values and are defaulted later.
func ParseSignals(raw []byte) (BehavioralSignals, error) {
	var s BehavioralSignals
	if err := json.Unmarshal(raw, &s); err != nil {
		return BehavioralSignals{}, fmt.Errorf("decode behavioral signals: %w", err)
	}
	return s, nil
}

// FromSignals maps analyzer output onto a new agent. Identity fields come
// from the caller (the analyzer only sees the transcript).
func FromSignals(name, occupation, location string, s BehavioralSignals) (Agent, error) {
	voice := VoiceProfile{
		SentenceLength:       SentenceLength(strings.ToLower(strings.TrimSpace(s.SpeechPatterns.SentenceLength))),
		Formality:            s.SpeechPatterns.Formality,
		FillerWords:          s.SpeechPatterns.FillerWords,
		CommonPhrases:        s.SpeechPatterns.CommonPhrases,
		SelfCorrection:       SelfCorrectionTier(strings.ToLower(strings.TrimSpace(s.SpeechPatterns.SelfCorrection))),
		VocabularyComplexity: s.VocabularyProfile.Complexity,
		AvoidWords:           s.VocabularyProfile.AvoidWords,
	}
	cog := CognitiveProfile{
		ComprehensionSpeed: ComprehensionSpeed(strings.ToLower(strings.TrimSpace(s.CognitiveSignals.ComprehensionSpeed))),
		Patience:           s.CognitiveSignals.Patience,
	}
	emo := EmotionalProfile{
		Baseline:            Baseline(strings.ToLower(strings.TrimSpace(s.EmotionalSignals.Baseline))),
		FrustrationTriggers: s.EmotionalSignals.FrustrationTriggers,
		ExcitementTriggers:  s.EmotionalSignals.ExcitementTriggers,
	}

	// Analyzer output is untrusted: out-of-vocabulary enum values fall back
	// to defaults instead of failing agent creation.
	if !validSentenceLength(voice.SentenceLength) {
		voice.SentenceLength = ""
	}
	if !validCorrectionTier(voice.SelfCorrection) {
		voice.SelfCorrection = ""
	}
	if !validComprehensionSpeed(cog.ComprehensionSpeed) {
		cog.ComprehensionSpeed = ""
	}
	if !validBaseline(emo.Baseline) {
		emo.Baseline = ""
	}
	voice.Formality = clampScale(voice.Formality)
	voice.VocabularyComplexity = clampScale(voice.VocabularyComplexity)
	cog.Patience = clampScale(cog.Patience)

	return New(name, occupation, location, voice, cog, emo)
}

func validSentenceLength(v SentenceLength) bool {
	switch v {
	case SentenceShort, SentenceMedium, SentenceLong:
		return true
	}
	return false
}

func validCorrectionTier(v SelfCorrectionTier) bool {
	switch v {
	case CorrectionNever, CorrectionRare, CorrectionOccasional, CorrectionFrequent:
		return true
	}
	return false
}

func validComprehensionSpeed(v ComprehensionSpeed) bool {
	switch v {
	case ComprehensionSlow, ComprehensionMedium, ComprehensionFast:
		return true
	}
	return false
}

func validBaseline(v Baseline) bool {
	switch v {
	case BaselinePositive, BaselineNeutral, BaselineNegative, BaselineAnxious, BaselineEnthusiastic:
		return true
	}
	return false
}

func clampScale(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
