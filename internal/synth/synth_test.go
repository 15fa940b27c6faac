package synth

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
)

// fakeProvider hands out scripted responses, one per call, concurrency-safe
type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
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

func testClusters() []model.ClaimCluster {
	return []model.ClaimCluster{
		{Theme: "permit backlog", Claims: []model.Claim{{Statement: "a"}}, SourceDiversity: 1},
	}
}

func TestSynthesizer_Consensus_Boost(t *testing.T) {
	// "Permit Backlog!" and "permit backlog" share a normalized key; the
	// pattern appears in samples 1 and 2 with different confidence.
	provider := &fakeProvider{responses: []string{
		`{"patterns": [{"title": "Permit Backlog!", "description": "d", "type": "policy_gap", "confidence": 0.6}]}`,
		`{"patterns": [{"title": "permit backlog", "description": "d2", "type": "policy_gap", "confidence": 0.7},
		               {"title": "lone idea", "description": "x", "type": "other", "confidence": 0.9}]}`,
		`{"patterns": []}`,
	}}

	s := NewSynthesizer(provider, 5, 0.7, 3)
	res, err := s.Synthesize(context.Background(), testClusters())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !res.Consensus {
		t.Fatal("Expected consensus to be reached")
	}
	if len(res.Patterns) != 1 {
		t.Fatalf("Expected 1 consensus pattern (lone idea dropped), got %d", len(res.Patterns))
	}

	p := res.Patterns[0]
	// Higher-confidence variant kept (0.7), boosted by 0.1 x (2-1)
	want := 0.7 + 0.1
	if math.Abs(p.Confidence-want) > 1e-9 {
		t.Errorf("Expected boosted confidence %v, got %v", want, p.Confidence)
	}
	if p.Description != "d2" {
		t.Errorf("Expected higher-confidence variant kept, got %q", p.Description)
	}
}

func TestSynthesizer_Consensus_Fallback(t *testing.T) {
	// No title recurs across samples: first sample passes through raw
	provider := &fakeProvider{responses: []string{
		`{"patterns": [{"title": "alpha", "description": "d", "type": "other", "confidence": 0.5}]}`,
		`{"patterns": [{"title": "beta", "description": "d", "type": "other", "confidence": 0.5}]}`,
		`{"patterns": [{"title": "gamma", "description": "d", "type": "other", "confidence": 0.5}]}`,
	}}

	s := NewSynthesizer(provider, 5, 0.7, 3)
	res, err := s.Synthesize(context.Background(), testClusters())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Consensus {
		t.Error("Expected fallback, not consensus")
	}
	if len(res.Patterns) != 1 || res.Patterns[0].Title != "alpha" {
		t.Errorf("Expected first sample's raw output, got %+v", res.Patterns)
	}
	if res.Patterns[0].Confidence != 0.5 {
		t.Errorf("Fallback must not boost confidence, got %v", res.Patterns[0].Confidence)
	}
}

func TestSynthesizer_Consensus_BoostClamped(t *testing.T) {
	same := `{"patterns": [{"title": "ubiquitous", "description": "d", "type": "other", "confidence": 0.95}]}`
	provider := &fakeProvider{responses: []string{same, same, same}}

	s := NewSynthesizer(provider, 5, 0.7, 3)
	res, err := s.Synthesize(context.Background(), testClusters())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	// 0.95 + 0.1x2 clamps to 1
	if res.Patterns[0].Confidence != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %v", res.Patterns[0].Confidence)
	}
}

func TestSynthesizer_ZeroClusters(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"patterns": []}`}}
	s := NewSynthesizer(provider, 5, 0.7, 3)

	res, err := s.Synthesize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(res.Patterns) != 0 || provider.calls != 0 {
		t.Error("Zero clusters must yield zero patterns without any call")
	}
}

func TestSynthesizer_AllSamplesFail(t *testing.T) {
	provider := &fakeProvider{err: errors.New("down")}
	s := NewSynthesizer(provider, 5, 0.7, 3)

	if _, err := s.Synthesize(context.Background(), testClusters()); err == nil {
		t.Fatal("Expected error when every sample fails")
	}
}

func TestNormalizeTitleKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Permit Backlog!", "permitbacklog"},
		{"permit-backlog", "permitbacklog"},
		{"  PERMIT   BACKLOG  ", "permitbacklog"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := normalizeTitleKey(tt.in); got != tt.want {
			t.Errorf("normalizeTitleKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCritic_Refine(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"reviews": [
		{"pattern": 0, "should_remove": true, "issues": ["unsupported"]},
		{"pattern": 1, "confidence_adjustment": -0.05},
		{"pattern": 2, "confidence_adjustment": -0.9},
		{"pattern": 7, "should_remove": true}
	]}`}}

	patterns := []model.Pattern{
		{Title: "weak", Confidence: 0.4},
		{Title: "adjusted", Confidence: 0.7},
		{Title: "floored", Confidence: 0.5},
	}

	c := NewCritic(provider, 30)
	out, removed, err := c.Refine(context.Background(), patterns, nil)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if removed != 1 || len(out) != 2 {
		t.Fatalf("Expected 1 removed, 2 kept; got removed=%d kept=%d", removed, len(out))
	}
	if math.Abs(out[0].Confidence-0.65) > 1e-9 {
		t.Errorf("Expected 0.7-0.05=0.65, got %v", out[0].Confidence)
	}
	// Adjustment clamped to -0.3 before applying: 0.5 - 0.3 = 0.2
	if math.Abs(out[1].Confidence-0.2) > 1e-9 {
		t.Errorf("Expected adjustment floor -0.3 (0.2), got %v", out[1].Confidence)
	}
}

func TestCritic_Refine_FailOpen(t *testing.T) {
	provider := &fakeProvider{err: errors.New("critique down")}
	patterns := []model.Pattern{{Title: "p", Confidence: 0.6}}

	c := NewCritic(provider, 30)
	out, removed, err := c.Refine(context.Background(), patterns, nil)
	if err == nil {
		t.Fatal("Expected error to be reported for the run record")
	}
	if removed != 0 || len(out) != 1 || out[0].Confidence != 0.6 {
		t.Errorf("Failed critique must pass patterns through unchanged, got %+v", out)
	}
}

func TestCritic_Refine_ClaimLimit(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"reviews": []}`}}
	c := NewCritic(provider, 2)

	claims := []model.Claim{
		{Statement: "first claim"},
		{Statement: "second claim"},
		{Statement: "third claim"},
	}
	if _, _, err := c.Refine(context.Background(), []model.Pattern{{Title: "p"}}, claims); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("Expected one call, got %d", len(provider.prompts))
	}
	if strings.Contains(provider.prompts[0], "third claim") {
		t.Error("Claims beyond the limit must not reach the prompt")
	}
	if !strings.Contains(provider.prompts[0], "second claim") {
		t.Error("Claims inside the limit should reach the prompt")
	}
}

func TestBriefGenerator_FloorAndCitations(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"Backlogs persist. See https://example.org/a and https://evil.example/fake for details.",
	}}

	g := NewBriefGenerator(provider, 0.6)

	low := model.Pattern{Title: "low", Confidence: 0.3}
	brief, err := g.Generate(context.Background(), low)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if brief != "" || provider.calls != 0 {
		t.Error("Below-floor pattern must not trigger a call")
	}

	high := model.Pattern{
		Title:      "high",
		Confidence: 0.8,
		Sources:    []model.SourceRef{{ItemURL: "https://example.org/a"}},
	}
	brief, err = g.Generate(context.Background(), high)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(brief, "https://example.org/a") {
		t.Error("Evidence URL should survive citation enforcement")
	}
	if strings.Contains(brief, "evil.example") {
		t.Error("Non-evidence URL must be stripped")
	}
}

func TestBriefGenerator_FailureNonFatal(t *testing.T) {
	provider := &fakeProvider{err: errors.New("down")}
	g := NewBriefGenerator(provider, 0.6)

	brief, err := g.Generate(context.Background(), model.Pattern{Title: "p", Confidence: 0.9})
	if err == nil {
		t.Fatal("Expected error for the run record")
	}
	if brief != "" {
		t.Errorf("Failed brief must be empty, got %q", brief)
	}
}
