package dedupe

import (
	"testing"

	"github.com/mkravets/tectonic/internal/model"
)

func TestDeduplicator_IsDuplicate(t *testing.T) {
	stored := model.Pattern{
		Title:       "Permit approval backlog grows across municipalities",
		Description: "Approval queues for building permits keep growing while staffing shrinks",
	}
	d := NewDeduplicator([]model.Pattern{stored}, 0)

	tests := []struct {
		name      string
		candidate model.Pattern
		want      bool
	}{
		{
			name: "near identical rewording",
			candidate: model.Pattern{
				Title:       "Permit approval backlog grows across municipalities",
				Description: "Approval queues for building permits keep growing while staffing levels shrink",
			},
			want: true,
		},
		{
			name: "different topic",
			candidate: model.Pattern{
				Title:       "Energy grid maintenance deferred",
				Description: "Transmission operators postpone upgrades under budget pressure",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sim := d.IsDuplicate(tt.candidate)
			if got != tt.want {
				t.Errorf("IsDuplicate = %v (similarity %.2f), want %v", got, sim, tt.want)
			}
		})
	}
}

func TestDeduplicator_Idempotent(t *testing.T) {
	// A pattern compared against an exact stored copy of itself is always a
	// duplicate: re-running over identical content cannot grow the store.
	patterns := []model.Pattern{
		{Title: "Permit approval backlog grows", Description: "Queues keep growing while staffing shrinks"},
		{Title: "Information asymmetry in leasing", Description: "Tenants lack access to comparable pricing data"},
	}

	d := NewDeduplicator(patterns, 0)
	for _, p := range patterns {
		dup, sim := d.IsDuplicate(p)
		if !dup {
			t.Errorf("Pattern %q should match itself (similarity %.2f)", p.Title, sim)
		}
		if sim != 1.0 {
			t.Errorf("Self-similarity should be 1.0, got %v", sim)
		}
	}
}

func TestDeduplicator_EmptyStore(t *testing.T) {
	d := NewDeduplicator(nil, 0)
	dup, sim := d.IsDuplicate(model.Pattern{Title: "Anything at all", Description: "First pattern ever"})
	if dup || sim != 0 {
		t.Errorf("Empty store can have no duplicates, got dup=%v sim=%v", dup, sim)
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"permit": true, "backlog": true, "grows": true}
	b := map[string]bool{"permit": true, "backlog": true, "shrinks": true}

	got := jaccard(a, b)
	want := 2.0 / 4.0
	if got != want {
		t.Errorf("jaccard = %v, want %v", got, want)
	}

	if jaccard(nil, nil) != 0 {
		t.Error("Two empty sets are not similar")
	}
}
