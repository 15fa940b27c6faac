// Package validate compares new information units against the historical
// knowledge base and folds the comparison outcomes into unit confidence,
// weighted by how falsifiable the historical evidence is.
package validate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/store"
	"github.com/mkravets/tectonic/internal/structured"
)

// Confidence impact of one comparison is bounded before weighting
const maxComparisonImpact = 0.2

// Below this net change no adjustment record is written
const materialityThreshold = 0.001

// Validator compares new units against historical ones and adjusts confidence
type Validator struct {
	store          *store.Store
	provider       llm.Provider // nil disables LLM judgments, heuristic only
	maxComparisons int

	// Read-through cache for the historical-unit overlap query; repeated
	// units from one run mostly share domains and hit the same candidates
	candidates *gocache.Cache
}

// NewValidator creates a knowledge base validator
func NewValidator(s *store.Store, provider llm.Provider, maxComparisons int) *Validator {
	if maxComparisons <= 0 {
		maxComparisons = 10
	}
	return &Validator{
		store:          s,
		provider:       provider,
		maxComparisons: maxComparisons,
		candidates:     gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Outcome reports what validating one unit did
type Outcome struct {
	Unit        model.InformationUnit
	Comparisons []model.CrossIssueComparison
	NetImpact   float64
	Adjusted    bool
}

// ValidateUnit compares the unit against historically relevant units, applies
// the weighted net impact to its confidence, marks it validated and persists
// the unit, every comparison, and one adjustment record when the change is
// material.
func (v *Validator) ValidateUnit(ctx context.Context, unit model.InformationUnit) (*Outcome, error) {
	historical, err := v.relevantUnits(unit)
	if err != nil {
		return nil, fmt.Errorf("kb_validate: retrieve candidates: %w", err)
	}
	if len(historical) > v.maxComparisons {
		historical = historical[:v.maxComparisons]
	}

	prior := unit.Confidence
	net := 0.0
	comparisons := make([]model.CrossIssueComparison, 0, len(historical))

	for _, h := range historical {
		cmp := v.compare(ctx, unit, h)
		net += cmp.ConfidenceImpact * cmp.FalsifiabilityWeight * cmp.TemporalRelevance
		comparisons = append(comparisons, cmp)
	}

	unit.Confidence = model.Clamp01(prior + net)
	unit.KBValidated = true
	unit.UpdateCount++

	if err := v.store.PutUnit(unit); err != nil {
		return nil, fmt.Errorf("kb_validate: persist unit: %w", err)
	}
	for _, cmp := range comparisons {
		if err := v.store.AppendComparison(cmp); err != nil {
			return nil, fmt.Errorf("kb_validate: persist comparison: %w", err)
		}
	}

	adjusted := false
	if math.Abs(unit.Confidence-prior) >= materialityThreshold {
		adjusted = true
		adj := model.ConfidenceAdjustment{
			ID:         uuid.NewString(),
			EntityType: "unit",
			EntityID:   unit.ID,
			Field:      "confidence",
			Previous:   prior,
			New:        unit.Confidence,
			Reason:     fmt.Sprintf("knowledge base validation against %d historical units", len(comparisons)),
			CreatedAt:  time.Now().UTC(),
		}
		if err := v.store.AppendAdjustment(adj); err != nil {
			return nil, fmt.Errorf("kb_validate: persist adjustment: %w", err)
		}
	}

	return &Outcome{
		Unit:        unit,
		Comparisons: comparisons,
		NetImpact:   net,
		Adjusted:    adjusted,
	}, nil
}

// relevantUnits queries the store through the candidate cache
func (v *Validator) relevantUnits(unit model.InformationUnit) ([]model.InformationUnit, error) {
	key := candidateKey(unit)
	if cached, ok := v.candidates.Get(key); ok {
		return cached.([]model.InformationUnit), nil
	}

	units, err := v.store.UnitsByOverlap(unit.Domains, unit.Concepts, unit.IssueID, v.maxComparisons*2)
	if err != nil {
		return nil, err
	}
	v.candidates.Set(key, units, gocache.DefaultExpiration)
	return units, nil
}

func candidateKey(unit model.InformationUnit) string {
	return unit.IssueID + "|" + strings.Join(unit.Domains, ",") + "|" + strings.Join(unit.Concepts, ",")
}

type comparisonResponse struct {
	Relationship      string  `json:"relationship"`
	Similarity        float64 `json:"similarity"`
	Relevance         float64 `json:"relevance"`
	ConfidenceImpact  float64 `json:"confidence_impact"`
	TemporalRelevance float64 `json:"temporal_relevance"`
}

// compare judges one pair, via the LLM when available, with the heuristic
// comparator as fallback. FalsifiabilityWeight is always derived from the
// historical unit regardless of which path produced the judgment.
func (v *Validator) compare(ctx context.Context, unit, historical model.InformationUnit) model.CrossIssueComparison {
	cmp := model.CrossIssueComparison{
		ID:                   uuid.NewString(),
		UnitID:               unit.ID,
		HistoricalUnitID:     historical.ID,
		FalsifiabilityWeight: FalsifiabilityWeight(historical.Falsifiability),
		CreatedAt:            time.Now().UTC(),
	}

	if judged, err := v.llmCompare(ctx, unit, historical); err == nil {
		cmp.Relationship = judged.Relationship
		cmp.Similarity = judged.Similarity
		cmp.Relevance = judged.Relevance
		cmp.ConfidenceImpact = judged.ConfidenceImpact
		cmp.TemporalRelevance = judged.TemporalRelevance
		return cmp
	}

	rel, sim := HeuristicCompare(unit, historical)
	cmp.Relationship = rel
	cmp.Similarity = sim
	cmp.Relevance = sim
	cmp.ConfidenceImpact = 0
	cmp.TemporalRelevance = 1
	return cmp
}

type judgment struct {
	Relationship      model.Relationship
	Similarity        float64
	Relevance         float64
	ConfidenceImpact  float64
	TemporalRelevance float64
}

var errNoProvider = fmt.Errorf("no generation provider configured")

func (v *Validator) llmCompare(ctx context.Context, unit, historical model.InformationUnit) (*judgment, error) {
	if v.provider == nil {
		return nil, errNoProvider
	}

	resp, err := v.provider.Generate(ctx, llm.GenerateRequest{
		Prompt: buildComparisonPrompt(unit, historical),
	})
	if err != nil {
		return nil, err
	}

	parsed, err := structured.Decode[comparisonResponse](resp.Text)
	if err != nil {
		return nil, err
	}

	rel := model.Relationship(strings.ToLower(strings.TrimSpace(parsed.Relationship)))
	switch rel {
	case model.RelationshipSupports, model.RelationshipContradicts,
		model.RelationshipRefines, model.RelationshipUnrelated:
	default:
		rel = model.RelationshipUnrelated
	}

	return &judgment{
		Relationship:      rel,
		Similarity:        model.Clamp01(parsed.Similarity),
		Relevance:         model.Clamp01(parsed.Relevance),
		ConfidenceImpact:  clampImpact(parsed.ConfidenceImpact),
		TemporalRelevance: model.Clamp01(parsed.TemporalRelevance),
	}, nil
}

// FalsifiabilityWeight is superlinear in the historical unit's falsifiability:
// weak theoretical claims barely move confidence, hard data points move it
// much more
func FalsifiabilityWeight(falsifiability float64) float64 {
	return math.Pow(model.Clamp01(falsifiability), 1.5)
}

// HeuristicCompare is the conservative no-op fallback: Jaccard over domains
// (40%) and concepts (60%); refines above 0.5 similarity, unrelated below.
// Callers assign it zero confidence impact.
func HeuristicCompare(a, b model.InformationUnit) (model.Relationship, float64) {
	sim := 0.4*jaccardTerms(a.Domains, b.Domains) + 0.6*jaccardTerms(a.Concepts, b.Concepts)
	if sim > 0.5 {
		return model.RelationshipRefines, sim
	}
	return model.RelationshipUnrelated, sim
}

func jaccardTerms(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clampImpact(v float64) float64 {
	if v < -maxComparisonImpact {
		return -maxComparisonImpact
	}
	if v > maxComparisonImpact {
		return maxComparisonImpact
	}
	return v
}

func buildComparisonPrompt(unit, historical model.InformationUnit) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Compare a new information unit against a historical one from the knowledge base.

New unit (%s level):
%s
Domains: %s; Concepts: %s; Scope: %s %s

Historical unit (%s level, recorded %s):
%s
Domains: %s; Concepts: %s; Scope: %s %s

Return a JSON object:
{"relationship": "supports", "similarity": 0.7, "relevance": 0.6, "confidence_impact": 0.1, "temporal_relevance": 0.9}

Rules:
- "relationship" is supports, contradicts, refines or unrelated.
- "confidence_impact" is between -0.2 and 0.2: positive when the historical unit corroborates the new one, negative when it contradicts it, zero when unrelated.
- "temporal_relevance" discounts stale historical evidence (0-1).
`,
		unit.Granularity, unit.Statement,
		strings.Join(unit.Domains, ", "), strings.Join(unit.Concepts, ", "),
		unit.TemporalSpecifics, unit.SpatialSpecifics,
		historical.Granularity, historical.CreatedAt.Format("2006-01-02"),
		historical.Statement,
		strings.Join(historical.Domains, ", "), strings.Join(historical.Concepts, ", "),
		historical.TemporalSpecifics, historical.SpatialSpecifics,
	)

	return b.String()
}
