package model

import "time"

// FeedbackKind names the fixed set of downstream outcome signals the
// confidence processor understands
type FeedbackKind string

const (
	FeedbackVerificationResult FeedbackKind = "verification_result"
	FeedbackSourceAccuracy     FeedbackKind = "source_accuracy"
	FeedbackSolutionOutcome    FeedbackKind = "solution_outcome"
	FeedbackPlaybookExecution  FeedbackKind = "playbook_execution"
	FeedbackManualCorrection   FeedbackKind = "manual_correction"
)

// FeedbackEvent is a pending downstream outcome waiting to be folded back
// into stored confidence fields. Processed exactly once: re-running the
// processor must not double-apply an event.
type FeedbackEvent struct {
	ID          string          `json:"id"`
	Kind        FeedbackKind    `json:"kind"`
	EntityType  string          `json:"entity_type"` // pattern, unit, source, playbook
	EntityID    string          `json:"entity_id"`
	Payload     FeedbackPayload `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Error       string          `json:"error,omitempty"` // Set when processing failed; event still marked processed
	CreatedAt   time.Time       `json:"created_at"`
}

// FeedbackPayload carries the kind-specific fields of a feedback event.
// Only the fields relevant to the event's kind are set.
type FeedbackPayload struct {
	// verification_result: corroborated, contested, inconclusive
	Verdict string `json:"verdict,omitempty"`

	// source_accuracy: ratio of verifications that held up, and how sure the
	// verifier was (drives the learning rate)
	AccuracyRatio *float64 `json:"accuracy_ratio,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`

	// solution_outcome: effective, partial, ineffective
	Outcome       string   `json:"outcome,omitempty"`
	Effectiveness *float64 `json:"effectiveness,omitempty"`

	// playbook_execution
	PlaybookID string `json:"playbook_id,omitempty"`
	Success    *bool  `json:"success,omitempty"`

	// manual_correction: absolute value to set on the named field
	Field string   `json:"field,omitempty"`
	Value *float64 `json:"value,omitempty"`
	Note  string   `json:"note,omitempty"`
}

// ConfidenceAdjustment is the append-only audit record of any confidence
// change to any entity. The sole source of truth for why a number changed.
type ConfidenceAdjustment struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Field      string    `json:"field"`
	Previous   float64   `json:"previous"`
	New        float64   `json:"new"`
	Reason     string    `json:"reason"` // Never empty
	EventID    string    `json:"event_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SystemLearning is an aggregate statistic keyed by (category, key), upserted
// incrementally and read by future runs to bias defaults. Advisory only.
type SystemLearning struct {
	Category         string    `json:"category"`
	Key              string    `json:"key"`
	SampleSize       int       `json:"sample_size"`
	Successes        int       `json:"successes"`
	Failures         int       `json:"failures"`
	AvgConfidence    float64   `json:"avg_confidence"`
	AvgEffectiveness float64   `json:"avg_effectiveness"`
	AvgAccuracy      float64   `json:"avg_accuracy"`
	Insights         []string  `json:"insights,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RecordSample folds one observation into the running averages
func (l *SystemLearning) RecordSample(success bool, confidence, effectiveness, accuracy float64) {
	n := float64(l.SampleSize)
	l.AvgConfidence = (l.AvgConfidence*n + confidence) / (n + 1)
	l.AvgEffectiveness = (l.AvgEffectiveness*n + effectiveness) / (n + 1)
	l.AvgAccuracy = (l.AvgAccuracy*n + accuracy) / (n + 1)
	l.SampleSize++
	if success {
		l.Successes++
	} else {
		l.Failures++
	}
}
