package feedback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/mkravets/tectonic/internal/events"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.InMemoryConfig())
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPattern(t *testing.T, s *store.Store, confidence float64) model.Pattern {
	t.Helper()
	p := model.Pattern{
		ID:         "p-1",
		Title:      "Permit backlog",
		Type:       model.PatternPolicyGap,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreatePattern(p); err != nil {
		t.Fatalf("CreatePattern failed: %v", err)
	}
	return p
}

func enqueue(t *testing.T, s *store.Store, e model.FeedbackEvent) {
	t.Helper()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := s.EnqueueFeedback(e); err != nil {
		t.Fatalf("EnqueueFeedback failed: %v", err)
	}
}

func TestProcessor_Verification(t *testing.T) {
	tests := []struct {
		verdict string
		want    float64
	}{
		{"corroborated", 0.5 * 1.05},
		{"contested", 0.5 * 0.85},
		{"inconclusive", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			s := openTestStore(t)
			seedPattern(t, s, 0.5)
			enqueue(t, s, model.FeedbackEvent{
				ID:         "e-1",
				Kind:       model.FeedbackVerificationResult,
				EntityType: "pattern",
				EntityID:   "p-1",
				Payload:    model.FeedbackPayload{Verdict: tt.verdict},
			})

			p := NewProcessor(s, nil)
			summary, err := p.ProcessPending(context.Background(), 0)
			if err != nil {
				t.Fatalf("ProcessPending failed: %v", err)
			}
			if summary.Processed != 1 || summary.Failed != 0 {
				t.Fatalf("Unexpected summary: %+v", summary)
			}

			got, err := s.GetPattern("p-1")
			if err != nil {
				t.Fatalf("GetPattern failed: %v", err)
			}
			if math.Abs(got.Confidence-tt.want) > 1e-9 {
				t.Errorf("Expected confidence %v, got %v", tt.want, got.Confidence)
			}

			// Learning updated per pattern type
			l, err := s.GetLearning("pattern_verification", "pattern_type:policy_gap")
			if err != nil {
				t.Fatalf("GetLearning failed: %v", err)
			}
			if l.SampleSize != 1 {
				t.Errorf("Expected 1 learning sample, got %d", l.SampleSize)
			}
		})
	}
}

func TestProcessor_Verification_AuditRecord(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Verdict: "corroborated"},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}

	adjustments, err := s.AdjustmentsFor("pattern", "p-1")
	if err != nil {
		t.Fatalf("AdjustmentsFor failed: %v", err)
	}
	if len(adjustments) != 1 {
		t.Fatalf("Expected 1 adjustment record, got %d", len(adjustments))
	}
	adj := adjustments[0]
	if adj.EventID != "e-1" || adj.Reason == "" {
		t.Errorf("Adjustment must name its event and reason: %+v", adj)
	}
	if adj.Previous != 0.5 || math.Abs(adj.New-0.525) > 1e-9 {
		t.Errorf("Unexpected adjustment values: %+v", adj)
	}
}

func TestProcessor_Verification_InconclusiveNotAudited(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Verdict: "inconclusive"},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}

	adjustments, err := s.AdjustmentsFor("pattern", "p-1")
	if err != nil {
		t.Fatalf("AdjustmentsFor failed: %v", err)
	}
	if len(adjustments) != 0 {
		t.Errorf("Immaterial change must not be audited, got %d records", len(adjustments))
	}
}

func TestProcessor_SourceAccuracy(t *testing.T) {
	s := openTestStore(t)
	src := model.Source{ID: "src-1", Name: "Ledger", Credibility: 0.5}
	if err := s.PutSource(src); err != nil {
		t.Fatalf("PutSource failed: %v", err)
	}

	ratio := 0.9
	confidence := 0.5
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackSourceAccuracy,
		EntityType: "source",
		EntityID:   "src-1",
		Payload:    model.FeedbackPayload{AccuracyRatio: &ratio, Confidence: &confidence},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}

	got, err := s.GetSource("src-1")
	if err != nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	// rate = min(0.3, 0.3x0.5) = 0.15; 0.5 + (0.9-0.5)x0.15 = 0.56
	want := 0.56
	if math.Abs(got.DynamicReliability-want) > 1e-9 {
		t.Errorf("Expected reliability %v, got %v", want, got.DynamicReliability)
	}
}

func TestProcessor_SolutionOutcome(t *testing.T) {
	tests := []struct {
		outcome string
		want    float64
	}{
		{"effective", 0.5 * 1.08},
		{"partial", 0.5},
		{"ineffective", 0.5 * 0.90},
	}

	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			s := openTestStore(t)
			seedPattern(t, s, 0.5)
			enqueue(t, s, model.FeedbackEvent{
				ID:         "e-1",
				Kind:       model.FeedbackSolutionOutcome,
				EntityType: "pattern",
				EntityID:   "p-1",
				Payload:    model.FeedbackPayload{Outcome: tt.outcome},
			})

			p := NewProcessor(s, nil)
			if _, err := p.ProcessPending(context.Background(), 0); err != nil {
				t.Fatalf("ProcessPending failed: %v", err)
			}

			got, err := s.GetPattern("p-1")
			if err != nil {
				t.Fatalf("GetPattern failed: %v", err)
			}
			if math.Abs(got.Confidence-tt.want) > 1e-9 {
				t.Errorf("Expected confidence %v, got %v", tt.want, got.Confidence)
			}
		})
	}
}

func TestProcessor_PlaybookExecution(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)

	success := true
	effectiveness := 0.8
	enqueue(t, s, model.FeedbackEvent{
		ID:   "e-1",
		Kind: model.FeedbackPlaybookExecution,
		Payload: model.FeedbackPayload{
			PlaybookID:    "pb-1",
			Success:       &success,
			Effectiveness: &effectiveness,
		},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}

	l, err := s.GetLearning("playbook_execution", "playbook:pb-1")
	if err != nil {
		t.Fatalf("GetLearning failed: %v", err)
	}
	if l.SampleSize != 1 || l.Successes != 1 {
		t.Errorf("Unexpected learning: %+v", l)
	}

	// Playbook outcomes never touch pattern confidence
	got, err := s.GetPattern("p-1")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Playbook execution must not change confidence, got %v", got.Confidence)
	}
}

func TestProcessor_ManualCorrection(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)

	value := 0.25
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackManualCorrection,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Field: "confidence", Value: &value, Note: "analyst override"},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}

	got, err := s.GetPattern("p-1")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if got.Confidence != 0.25 {
		t.Errorf("Expected absolute set to 0.25, got %v", got.Confidence)
	}

	adjustments, err := s.AdjustmentsFor("pattern", "p-1")
	if err != nil {
		t.Fatalf("AdjustmentsFor failed: %v", err)
	}
	if len(adjustments) != 1 || adjustments[0].Reason != "manual correction: analyst override" {
		t.Errorf("Expected audited manual correction, got %+v", adjustments)
	}
}

func TestProcessor_Idempotent(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Verdict: "corroborated"},
	})

	p := NewProcessor(s, nil)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("First ProcessPending failed: %v", err)
	}
	summary, err := p.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("Second ProcessPending failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("Second run must process nothing, got %+v", summary)
	}

	got, err := s.GetPattern("p-1")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	want := 0.5 * 1.05
	if math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("Adjustment applied more than once: %v", got.Confidence)
	}
}

func TestProcessor_BadEventDoesNotWedgeQueue(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)

	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-bad",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "missing",
		Payload:    model.FeedbackPayload{Verdict: "corroborated"},
		CreatedAt:  time.Now().UTC().Add(-time.Minute),
	})
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-good",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Verdict: "corroborated"},
	})

	p := NewProcessor(s, nil)
	summary, err := p.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 1 {
		t.Errorf("Expected 1 failed + 1 processed, got %+v", summary)
	}

	pending, err := s.PendingFeedback(0)
	if err != nil {
		t.Fatalf("PendingFeedback failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Failed event must still leave the queue, %d pending", len(pending))
	}
}

func TestProcessor_PublishesEvents(t *testing.T) {
	s := openTestStore(t)
	seedPattern(t, s, 0.5)
	enqueue(t, s, model.FeedbackEvent{
		ID:         "e-1",
		Kind:       model.FeedbackVerificationResult,
		EntityType: "pattern",
		EntityID:   "p-1",
		Payload:    model.FeedbackPayload{Verdict: "corroborated"},
	})

	bus := events.NewBus()
	var published []interface{}
	bus.Subscribe(events.TopicFeedbackProcessed, func(payload interface{}) {
		published = append(published, payload)
	})

	p := NewProcessor(s, bus)
	if _, err := p.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	if len(published) != 1 || published[0] != "e-1" {
		t.Errorf("Expected feedback.processed for e-1, got %v", published)
	}
}
