package model

import "time"

// GranularityLevel is one of 7 abstraction tiers governing how falsifiable a
// statement is and how often it is expected to be revised. paradigm is the most
// abstract (barely falsifiable), data_point the most concrete.
type GranularityLevel string

const (
	GranularityParadigm    GranularityLevel = "paradigm"
	GranularityFramework   GranularityLevel = "framework"
	GranularityTheory      GranularityLevel = "theory"
	GranularityMechanism   GranularityLevel = "mechanism"
	GranularityTrend       GranularityLevel = "trend"
	GranularityObservation GranularityLevel = "observation"
	GranularityDataPoint   GranularityLevel = "data_point"
)

// granularityProfile carries the fixed epistemic parameters of a level
type granularityProfile struct {
	baseFalsifiability float64 // How concretely a statement at this level could be disproven
	updateRate         float64 // How quickly evidence at this level goes stale
}

var granularityProfiles = map[GranularityLevel]granularityProfile{
	GranularityParadigm:    {baseFalsifiability: 0.10, updateRate: 0.05},
	GranularityFramework:   {baseFalsifiability: 0.25, updateRate: 0.10},
	GranularityTheory:      {baseFalsifiability: 0.40, updateRate: 0.20},
	GranularityMechanism:   {baseFalsifiability: 0.55, updateRate: 0.35},
	GranularityTrend:       {baseFalsifiability: 0.70, updateRate: 0.50},
	GranularityObservation: {baseFalsifiability: 0.85, updateRate: 0.70},
	GranularityDataPoint:   {baseFalsifiability: 0.95, updateRate: 0.90},
}

// Valid reports whether g is one of the 7 known levels
func (g GranularityLevel) Valid() bool {
	_, ok := granularityProfiles[g]
	return ok
}

// BaseFalsifiability returns the level's fixed base falsifiability score.
// Unknown levels get the theory baseline.
func (g GranularityLevel) BaseFalsifiability() float64 {
	if p, ok := granularityProfiles[g]; ok {
		return p.baseFalsifiability
	}
	return granularityProfiles[GranularityTheory].baseFalsifiability
}

// UpdateRate returns the level's expected revision rate
func (g GranularityLevel) UpdateRate() float64 {
	if p, ok := granularityProfiles[g]; ok {
		return p.updateRate
	}
	return granularityProfiles[GranularityTheory].updateRate
}

// GranularityLevels lists all levels from most abstract to most concrete
func GranularityLevels() []GranularityLevel {
	return []GranularityLevel{
		GranularityParadigm, GranularityFramework, GranularityTheory,
		GranularityMechanism, GranularityTrend, GranularityObservation,
		GranularityDataPoint,
	}
}

// Measurability classifies how a statement can be measured
type Measurability string

const (
	MeasurabilityQuantitative Measurability = "quantitative"
	MeasurabilityQualitative  Measurability = "qualitative"
	MeasurabilityMixed        Measurability = "mixed"
)

// Quantitative is the optional numeric payload of an information unit
type Quantitative struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// InformationUnit is an atomic fact at one granularity level. Units persist
// indefinitely as part of the knowledge base; only the knowledge-base validator
// and direct confidence adjustments may mutate Confidence, UpdateCount and
// KBValidated.
type InformationUnit struct {
	ID                    string           `json:"id"`
	IssueID               string           `json:"issue_id"` // Issue the unit was extracted for
	Statement             string           `json:"statement"`
	Granularity           GranularityLevel `json:"granularity"`
	GranularityConfidence float64          `json:"granularity_confidence"` // Confidence in the level classification
	TemporalScope         string           `json:"temporal_scope,omitempty"`
	TemporalSpecifics     string           `json:"temporal_specifics,omitempty"`
	SpatialScope          string           `json:"spatial_scope,omitempty"`
	SpatialSpecifics      string           `json:"spatial_specifics,omitempty"`
	Domains               []string         `json:"domains,omitempty"`
	Concepts              []string         `json:"concepts,omitempty"`
	Measurability         Measurability    `json:"measurability"`
	Quantitative          *Quantitative    `json:"quantitative,omitempty"`
	Falsifiability        float64          `json:"falsifiability"` // Derived, clamped [0,1]
	Confidence            float64          `json:"confidence"`     // Current confidence, mutable
	UpdateCount           int              `json:"update_count"`
	KBValidated           bool             `json:"kb_validated"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Relationship classifies how one information unit relates to another
type Relationship string

const (
	RelationshipSupports    Relationship = "supports"
	RelationshipContradicts Relationship = "contradicts"
	RelationshipRefines     Relationship = "refines"
	RelationshipUnrelated   Relationship = "unrelated"
)

// CrossIssueComparison is the immutable audit record of comparing one new
// information unit against one historical unit
type CrossIssueComparison struct {
	ID                   string       `json:"id"`
	UnitID               string       `json:"unit_id"`
	HistoricalUnitID     string       `json:"historical_unit_id"`
	Relationship         Relationship `json:"relationship"`
	Similarity           float64      `json:"similarity"`
	Relevance            float64      `json:"relevance"`
	ConfidenceImpact     float64      `json:"confidence_impact"` // Bounded to [-0.2, 0.2] pre-weighting
	FalsifiabilityWeight float64      `json:"falsifiability_weight"`
	TemporalRelevance    float64      `json:"temporal_relevance"`
	CreatedAt            time.Time    `json:"created_at"`
}
