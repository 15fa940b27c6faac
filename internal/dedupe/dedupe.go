// Package dedupe rejects patterns too similar to recently stored ones, keeping
// repeated runs over overlapping sources from piling up near-identical signals.
package dedupe

import (
	"strings"

	"github.com/mkravets/tectonic/internal/model"
)

// Default threshold above which two patterns count as the same signal
const defaultThreshold = 0.6

// Deduplicator compares candidate patterns against a window of recent ones
type Deduplicator struct {
	recent    []map[string]bool
	threshold float64
}

// NewDeduplicator prepares comparison sets for the recent patterns.
// A non-positive threshold falls back to the default.
func NewDeduplicator(recent []model.Pattern, threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	sets := make([]map[string]bool, 0, len(recent))
	for _, p := range recent {
		sets = append(sets, wordSet(p))
	}
	return &Deduplicator{recent: sets, threshold: threshold}
}

// IsDuplicate reports whether the candidate's title+description exceeds the
// Jaccard similarity threshold against any recent pattern
func (d *Deduplicator) IsDuplicate(candidate model.Pattern) (bool, float64) {
	set := wordSet(candidate)

	best := 0.0
	for _, r := range d.recent {
		if sim := jaccard(set, r); sim > best {
			best = sim
		}
	}
	return best > d.threshold, best
}

// wordSet tokenizes title+description, keeping tokens longer than 3 characters
func wordSet(p model.Pattern) map[string]bool {
	set := make(map[string]bool)
	text := strings.ToLower(p.Title + " " + p.Description)
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		if len(token) > 3 {
			set[token] = true
		}
	}
	return set
}

// jaccard is |intersection| / |union| over two token sets
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
