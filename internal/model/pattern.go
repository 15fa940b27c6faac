package model

import "time"

// Pattern is a candidate systemic-issue signal synthesized from claim clusters.
// Once persisted it is immutable except for downstream confidence adjustments.
type Pattern struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Type            PatternType `json:"type"`
	Domains         []string    `json:"domains,omitempty"`
	Confidence      float64     `json:"confidence"`       // Always clamped to [0,1]
	ClaimSupport    int         `json:"claim_support"`    // Supporting claim count from cross-validation
	CrossValidation float64     `json:"cross_validation"` // Deterministic support score (0-1)
	Sources         []SourceRef `json:"sources,omitempty"`
	Brief           string      `json:"brief,omitempty"` // Optional generated issue brief
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// PatternType classifies the kind of systemic issue a pattern points at
type PatternType string

const (
	PatternPolicyGap              PatternType = "policy_gap"
	PatternStructuralInefficiency PatternType = "structural_inefficiency"
	PatternFeedbackLoop           PatternType = "feedback_loop"
	PatternInformationAsymmetry   PatternType = "information_asymmetry"
	PatternCoordinationFailure    PatternType = "coordination_failure"
	PatternOther                  PatternType = "other"
)

// NormalizePatternType coerces unknown generation output to PatternOther
func NormalizePatternType(t PatternType) PatternType {
	switch t {
	case PatternPolicyGap, PatternStructuralInefficiency, PatternFeedbackLoop,
		PatternInformationAsymmetry, PatternCoordinationFailure, PatternOther:
		return t
	}
	return PatternOther
}

// Clamp01 clamps a confidence-like value to [0,1].
// Generation output cannot be trusted, so values are clamped at the point of
// computation rather than rejected.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
