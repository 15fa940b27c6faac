package score

import (
	"math"
	"reflect"
	"testing"

	"github.com/mkravets/tectonic/internal/model"
)

func supportedPattern() model.Pattern {
	return model.Pattern{
		Title:       "Permit approval backlog grows",
		Description: "Municipal permit approval queues keep growing while staffing shrinks",
		Confidence:  0.5,
	}
}

func supportingClaimSet() []model.Claim {
	return []model.Claim{
		{
			Statement: "Permit approval backlog doubled this year",
			Source:    model.SourceRef{SourceName: "A", ItemURL: "https://a.example/1"},
		},
		{
			Statement: "Approval queues for building permit requests keep growing",
			Source:    model.SourceRef{SourceName: "B", ItemURL: "https://b.example/1"},
		},
		{
			Statement: "Unrelated energy grid news item",
			Source:    model.SourceRef{SourceName: "C", ItemURL: "https://c.example/1"},
		},
	}
}

func TestCrossValidator_Validate(t *testing.T) {
	v := NewCrossValidator()

	patterns, signals := v.Validate([]model.Pattern{supportedPattern()}, supportingClaimSet())
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if p.ClaimSupport != 2 {
		t.Fatalf("Expected 2 supporting claims, got %d", p.ClaimSupport)
	}

	// score = min(1, 2*0.1 + 2*0.2) = 0.6; conf = min(1, 0.5 + 0.6*0.2) = 0.62
	if math.Abs(p.CrossValidation-0.6) > 1e-9 {
		t.Errorf("Expected cross-validation score 0.6, got %v", p.CrossValidation)
	}
	if math.Abs(p.Confidence-0.62) > 1e-9 {
		t.Errorf("Expected confidence 0.62, got %v", p.Confidence)
	}

	if len(p.Sources) != 2 {
		t.Errorf("Expected 2 enriched sources, got %d", len(p.Sources))
	}

	if len(signals) == 0 || signals[0].Type != model.SignalClaimSupport {
		t.Errorf("Expected a claim_support signal, got %+v", signals)
	}
	if _, ok := signals[0].Data["formula"]; !ok {
		t.Error("Signal should carry its formula")
	}
}

func TestCrossValidator_Validate_Deterministic(t *testing.T) {
	v := NewCrossValidator()
	patterns := []model.Pattern{supportedPattern()}
	claims := supportingClaimSet()

	first, firstSignals := v.Validate(patterns, claims)
	second, secondSignals := v.Validate(patterns, claims)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Validation must be deterministic:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(firstSignals, secondSignals) {
		t.Error("Signals must be deterministic")
	}
}

func TestCrossValidator_Validate_NoSupport(t *testing.T) {
	v := NewCrossValidator()

	p := model.Pattern{Title: "Obscure topic", Description: "Nothing matches", Confidence: 0.4}
	patterns, signals := v.Validate([]model.Pattern{p}, supportingClaimSet())

	got := patterns[0]
	if got.ClaimSupport != 0 || got.CrossValidation != 0 {
		t.Errorf("Expected zero support, got %+v", got)
	}
	if got.Confidence != 0.4 {
		t.Errorf("Unsupported pattern's confidence must not move, got %v", got.Confidence)
	}

	found := false
	for _, s := range signals {
		if s.Type == model.SignalLowSupport {
			found = true
		}
	}
	if !found {
		t.Error("Expected a low_support signal")
	}
}

func TestCrossValidator_Validate_ConfidenceCeiling(t *testing.T) {
	v := NewCrossValidator()

	p := supportedPattern()
	p.Confidence = 0.95
	patterns, _ := v.Validate([]model.Pattern{p}, supportingClaimSet())

	if patterns[0].Confidence > 1.0 {
		t.Errorf("Confidence must clamp at 1, got %v", patterns[0].Confidence)
	}
}

func TestCrossValidator_SourceDedup(t *testing.T) {
	v := NewCrossValidator()

	claims := []model.Claim{
		{
			Statement: "Permit approval backlog doubled this year again",
			Source:    model.SourceRef{SourceName: "A", ItemURL: "https://a.example/1"},
		},
		{
			Statement: "Permit approval backlog keeps growing steadily",
			Source:    model.SourceRef{SourceName: "A", ItemURL: "https://a.example/1"},
		},
	}

	patterns, _ := v.Validate([]model.Pattern{supportedPattern()}, claims)
	if len(patterns[0].Sources) != 1 {
		t.Errorf("Sources sharing an item URL must deduplicate, got %d", len(patterns[0].Sources))
	}
}

func TestTokenSet(t *testing.T) {
	set := tokenSet("The Permit-Approval backlog, the QUEUE grew")
	for _, want := range []string{"permit", "approval", "backlog", "queue", "grew"} {
		if !set[want] {
			t.Errorf("Expected token %q in set %v", want, set)
		}
	}
	if set["the"] {
		t.Error("Tokens of length <=3 must be excluded")
	}
}
