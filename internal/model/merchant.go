package model

import "time"

// MerchantPattern is one row of the static pattern registry: a
// case-insensitive regex mapped to a category with a fixed confidence.
// The table is loaded once at startup and never mutated.
type MerchantPattern struct {
	Pattern     string
	Category    string
	DisplayName string
	Confidence  float64
}

// LearnedSource indicates how a learned-merchant rule was created.
type LearnedSource string

const (
	// LearnedFromUser indicates the rule came from a repeated user correction.
	LearnedFromUser LearnedSource = "user-correction"
	// LearnedFromML indicates the rule came from the on-device classifier.
	LearnedFromML LearnedSource = "ml"
	// LearnedCollaborative indicates the rule came from shared mappings.
	LearnedCollaborative LearnedSource = "collaborative"
)

// MaxLearnedConfidence caps how confident a learned rule can become, no
// matter how many samples support it.
const MaxLearnedConfidence = 0.98

// LearnedMerchant maps a normalized merchant substring to a category.
// Confidence grows with the sample count.
type LearnedMerchant struct {
	LastUsedAt  time.Time
	Pattern     string
	Category    string
	Source      LearnedSource
	SampleCount int
	Confidence  float64
}

// RecordSample registers one more confirmation of this mapping and bumps
// confidence toward the cap.
func (m *LearnedMerchant) RecordSample(at time.Time) {
	m.SampleCount++
	m.Confidence = 0.80 + 0.02*float64(m.SampleCount)
	if m.Confidence > MaxLearnedConfidence {
		m.Confidence = MaxLearnedConfidence
	}
	m.LastUsedAt = at
}
