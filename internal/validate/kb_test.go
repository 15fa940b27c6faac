package validate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/store"
)

type fakeProvider struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, _ llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &llm.GenerateResponse{Text: f.responses[idx], Model: "fake"}, nil
}

func (f *fakeProvider) IsAvailable(context.Context) bool { return true }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.InMemoryConfig())
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUnit(id, issueID string, confidence float64) model.InformationUnit {
	return model.InformationUnit{
		ID:          id,
		IssueID:     issueID,
		Statement:   "Median permit wait grew",
		Granularity: model.GranularityObservation,
		Domains:     []string{"housing"},
		Concepts:    []string{"permits"},
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
}

func seedHistorical(t *testing.T, s *store.Store, falsifiability float64) model.InformationUnit {
	t.Helper()
	h := newUnit("h-1", "issue-old", 0.7)
	h.Falsifiability = falsifiability
	if err := s.PutUnit(h); err != nil {
		t.Fatalf("PutUnit failed: %v", err)
	}
	return h
}

func TestValidator_ValidateUnit_AppliesWeightedImpact(t *testing.T) {
	s := openTestStore(t)
	seedHistorical(t, s, 0.9)

	provider := &fakeProvider{responses: []string{
		`{"relationship": "supports", "similarity": 0.8, "relevance": 0.7, "confidence_impact": 0.2, "temporal_relevance": 1.0}`,
	}}
	v := NewValidator(s, provider, 10)

	unit := newUnit("u-1", "issue-new", 0.5)
	out, err := v.ValidateUnit(context.Background(), unit)
	if err != nil {
		t.Fatalf("ValidateUnit failed: %v", err)
	}

	want := 0.5 + 0.2*math.Pow(0.9, 1.5)
	if math.Abs(out.Unit.Confidence-want) > 1e-9 {
		t.Errorf("Expected confidence %v, got %v", want, out.Unit.Confidence)
	}
	if !out.Unit.KBValidated {
		t.Error("Unit should be marked validated")
	}
	if out.Unit.UpdateCount != 1 {
		t.Errorf("Expected update count 1, got %d", out.Unit.UpdateCount)
	}
	if !out.Adjusted {
		t.Error("Material change should record an adjustment")
	}

	// The comparison is persisted as an audit record
	cmps, err := s.ComparisonsForUnit("u-1")
	if err != nil {
		t.Fatalf("ComparisonsForUnit failed: %v", err)
	}
	if len(cmps) != 1 || cmps[0].Relationship != model.RelationshipSupports {
		t.Errorf("Expected persisted supports comparison, got %+v", cmps)
	}

	// The stored unit reflects the applied change
	stored, err := s.GetUnit("u-1")
	if err != nil {
		t.Fatalf("GetUnit failed: %v", err)
	}
	if math.Abs(stored.Confidence-want) > 1e-9 {
		t.Errorf("Stored confidence %v, want %v", stored.Confidence, want)
	}
}

func TestValidator_FalsifiabilityWeight_Monotonic(t *testing.T) {
	// Identical agreement against a data_point-level unit must move
	// confidence more than against a paradigm-level unit.
	run := func(falsifiability float64) float64 {
		s := openTestStore(t)
		seedHistorical(t, s, falsifiability)
		provider := &fakeProvider{responses: []string{
			`{"relationship": "supports", "similarity": 0.8, "relevance": 0.7, "confidence_impact": 0.15, "temporal_relevance": 1.0}`,
		}}
		v := NewValidator(s, provider, 10)
		out, err := v.ValidateUnit(context.Background(), newUnit("u-1", "issue-new", 0.5))
		if err != nil {
			t.Fatalf("ValidateUnit failed: %v", err)
		}
		return out.Unit.Confidence - 0.5
	}

	paradigmDelta := run(model.GranularityParadigm.BaseFalsifiability())
	dataPointDelta := run(model.GranularityDataPoint.BaseFalsifiability())

	if dataPointDelta <= paradigmDelta {
		t.Errorf("data_point comparison (%v) must outweigh paradigm comparison (%v)",
			dataPointDelta, paradigmDelta)
	}
}

func TestValidator_HeuristicFallback(t *testing.T) {
	s := openTestStore(t)
	seedHistorical(t, s, 0.9)

	provider := &fakeProvider{err: errors.New("provider down")}
	v := NewValidator(s, provider, 10)

	unit := newUnit("u-1", "issue-new", 0.5)
	out, err := v.ValidateUnit(context.Background(), unit)
	if err != nil {
		t.Fatalf("ValidateUnit failed: %v", err)
	}

	// Heuristic fallback: zero impact, confidence unchanged, still validated
	if out.Unit.Confidence != 0.5 {
		t.Errorf("Heuristic fallback must not move confidence, got %v", out.Unit.Confidence)
	}
	if !out.Unit.KBValidated {
		t.Error("Unit should still be marked validated")
	}
	if out.Adjusted {
		t.Error("Zero impact must not record an adjustment")
	}
	if len(out.Comparisons) != 1 {
		t.Fatalf("Comparison must still be persisted, got %d", len(out.Comparisons))
	}
	// Same domains+concepts: sim = 0.4x1 + 0.6x1 = 1.0 > 0.5 => refines
	if out.Comparisons[0].Relationship != model.RelationshipRefines {
		t.Errorf("Expected refines, got %s", out.Comparisons[0].Relationship)
	}
}

func TestValidator_NoHistoricalUnits(t *testing.T) {
	s := openTestStore(t)
	v := NewValidator(s, &fakeProvider{responses: []string{"{}"}}, 10)

	out, err := v.ValidateUnit(context.Background(), newUnit("u-1", "issue-new", 0.5))
	if err != nil {
		t.Fatalf("ValidateUnit failed: %v", err)
	}
	if len(out.Comparisons) != 0 || out.Unit.Confidence != 0.5 {
		t.Errorf("Empty knowledge base should validate with no change, got %+v", out)
	}
	if !out.Unit.KBValidated {
		t.Error("Unit is validated even against an empty knowledge base")
	}
}

func TestValidator_ComparisonCap(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 8; i++ {
		h := newUnit("h-"+string(rune('a'+i)), "issue-old", 0.7)
		h.Falsifiability = 0.9
		if err := s.PutUnit(h); err != nil {
			t.Fatalf("PutUnit failed: %v", err)
		}
	}

	provider := &fakeProvider{responses: []string{
		`{"relationship": "supports", "similarity": 0.5, "relevance": 0.5, "confidence_impact": 0.0, "temporal_relevance": 1.0}`,
	}}
	v := NewValidator(s, provider, 3)

	out, err := v.ValidateUnit(context.Background(), newUnit("u-1", "issue-new", 0.5))
	if err != nil {
		t.Fatalf("ValidateUnit failed: %v", err)
	}
	if len(out.Comparisons) != 3 {
		t.Errorf("Expected comparisons capped at 3, got %d", len(out.Comparisons))
	}
}

func TestValidator_ImpactClamped(t *testing.T) {
	s := openTestStore(t)
	seedHistorical(t, s, 1.0)

	provider := &fakeProvider{responses: []string{
		`{"relationship": "contradicts", "similarity": 0.9, "relevance": 0.9, "confidence_impact": -0.8, "temporal_relevance": 1.0}`,
	}}
	v := NewValidator(s, provider, 10)

	out, err := v.ValidateUnit(context.Background(), newUnit("u-1", "issue-new", 0.5))
	if err != nil {
		t.Fatalf("ValidateUnit failed: %v", err)
	}
	// Impact clamps to -0.2 before weighting
	if out.Comparisons[0].ConfidenceImpact != -0.2 {
		t.Errorf("Expected impact clamped to -0.2, got %v", out.Comparisons[0].ConfidenceImpact)
	}
	if out.Unit.Confidence < 0 || out.Unit.Confidence > 1 {
		t.Errorf("Confidence out of bounds: %v", out.Unit.Confidence)
	}
}

func TestHeuristicCompare(t *testing.T) {
	a := model.InformationUnit{Domains: []string{"housing"}, Concepts: []string{"permits", "zoning"}}
	b := model.InformationUnit{Domains: []string{"housing"}, Concepts: []string{"permits"}}

	rel, sim := HeuristicCompare(a, b)
	// 0.4x1.0 + 0.6x0.5 = 0.7 > 0.5
	if rel != model.RelationshipRefines {
		t.Errorf("Expected refines, got %s", rel)
	}
	if math.Abs(sim-0.7) > 1e-9 {
		t.Errorf("Expected similarity 0.7, got %v", sim)
	}

	c := model.InformationUnit{Domains: []string{"energy"}, Concepts: []string{"grid"}}
	rel, sim = HeuristicCompare(a, c)
	if rel != model.RelationshipUnrelated || sim != 0 {
		t.Errorf("Expected unrelated/0, got %s/%v", rel, sim)
	}
}

func TestFalsifiabilityWeight(t *testing.T) {
	if FalsifiabilityWeight(0) != 0 {
		t.Error("Zero falsifiability means zero weight")
	}
	if FalsifiabilityWeight(1) != 1 {
		t.Error("Full falsifiability means full weight")
	}
	if FalsifiabilityWeight(0.5) >= 0.5 {
		t.Error("Weighting must be superlinear (below identity under 1)")
	}
}
