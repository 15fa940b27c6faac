package model

import "time"

// RunReport is the complete record of one discovery run. A run that hits
// partial failures still completes with whatever it produced; the Errors list
// says what failed and why.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	SourcesFetched    int `json:"sources_fetched"`
	ItemsFetched      int `json:"items_fetched"`
	ClaimsExtracted   int `json:"claims_extracted"`
	Clusters          int `json:"clusters"`
	RawPatterns       int `json:"raw_patterns"`       // Before consensus
	ConsensusPatterns int `json:"consensus_patterns"` // After self-consistency
	RefinedPatterns   int `json:"refined_patterns"`   // After critique
	Duplicates        int `json:"duplicates"`         // Rejected by dedup
	PersistedPatterns int `json:"persisted_patterns"`
	UnitsExtracted    int `json:"units_extracted"`
	UnitsValidated    int `json:"units_validated"`

	PersistedIDs []string   `json:"persisted_ids,omitempty"`
	Signals      []Signal   `json:"signals,omitempty"`
	Errors       []RunError `json:"errors,omitempty"`
}

// RunError records a non-fatal stage failure inside a run
type RunError struct {
	Stage   string    `json:"stage"`            // fetch, extract, cluster, synthesize, critique, decompose, kb_validate, brief
	Subject string    `json:"subject,omitempty"` // Source name, item URL, pattern title
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Signal is a transparent diagnostic emitted by deterministic scoring stages.
// Data carries the formula and its inputs so every number is explainable.
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalClaimSupport    SignalType = "claim_support"    // Lexical overlap between pattern and claims
	SignalSourceDiversity SignalType = "source_diversity" // Distinct sources backing a pattern
	SignalConsensus       SignalType = "consensus"        // Self-consistency agreement across samples
	SignalLowSupport      SignalType = "low_support"      // Pattern with no supporting claims
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// AddError appends a stage failure to the report
func (r *RunReport) AddError(stage, subject, message string) {
	r.Errors = append(r.Errors, RunError{
		Stage:   stage,
		Subject: subject,
		Message: message,
		At:      time.Now().UTC(),
	})
}
