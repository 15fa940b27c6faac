package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/mkravets/tectonic/internal/model"
)

// Key namespaces. Entities are stored as JSON under prefixed keys; comparisons
// and adjustments embed their parent in the key so prefix scans recover the
// audit trail.
const (
	prefixPattern    = "pattern:"
	prefixUnit       = "unit:"
	prefixComparison = "cmp:"
	prefixAdjustment = "adj:"
	prefixLearning   = "learn:"
	prefixEvent      = "event:"
	prefixSource     = "source:"
	keyDedupeSkips   = "meta:dedupe_skips"
)

// ErrNotFound is returned when the requested entity does not exist
var ErrNotFound = errors.New("entity not found")

func putJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanPrefix collects every value under a key prefix into out via fn
func (s *Store) scanPrefix(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				return fn(append([]byte(nil), val...))
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Patterns ---

// CreatePattern persists a new pattern
func (s *Store) CreatePattern(p model.Pattern) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixPattern+p.ID, p)
	})
}

// GetPattern retrieves a pattern by ID
func (s *Store) GetPattern(id string) (model.Pattern, error) {
	var p model.Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixPattern+id, &p)
	})
	return p, err
}

// RecentPatterns returns up to n stored patterns, newest first
func (s *Store) RecentPatterns(n int) ([]model.Pattern, error) {
	var patterns []model.Pattern
	err := s.scanPrefix(prefixPattern, func(val []byte) error {
		var p model.Pattern
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		patterns = append(patterns, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].CreatedAt.After(patterns[j].CreatedAt)
	})
	if n > 0 && len(patterns) > n {
		patterns = patterns[:n]
	}
	return patterns, nil
}

// CountPatterns returns the total number of stored patterns
func (s *Store) CountPatterns() (int, error) {
	count := 0
	err := s.scanPrefix(prefixPattern, func([]byte) error {
		count++
		return nil
	})
	return count, err
}

// --- Information units ---

// PutUnit persists an information unit (create or overwrite)
func (s *Store) PutUnit(u model.InformationUnit) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixUnit+u.ID, u)
	})
}

// GetUnit retrieves an information unit by ID
func (s *Store) GetUnit(id string) (model.InformationUnit, error) {
	var u model.InformationUnit
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixUnit+id, &u)
	})
	return u, err
}

// UnitsByOverlap returns up to limit historical units sharing at least one
// domain or concept with the query, excluding units from the given issue,
// ranked by overlap count
func (s *Store) UnitsByOverlap(domains, concepts []string, excludeIssueID string, limit int) ([]model.InformationUnit, error) {
	want := make(map[string]bool)
	for _, d := range domains {
		want[strings.ToLower(d)] = true
	}
	for _, c := range concepts {
		want[strings.ToLower(c)] = true
	}

	type scored struct {
		unit    model.InformationUnit
		overlap int
	}
	var candidates []scored

	err := s.scanPrefix(prefixUnit, func(val []byte) error {
		var u model.InformationUnit
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		if excludeIssueID != "" && u.IssueID == excludeIssueID {
			return nil
		}
		overlap := 0
		for _, d := range u.Domains {
			if want[strings.ToLower(d)] {
				overlap++
			}
		}
		for _, c := range u.Concepts {
			if want[strings.ToLower(c)] {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{unit: u, overlap: overlap})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].unit.CreatedAt.After(candidates[j].unit.CreatedAt)
	})

	units := make([]model.InformationUnit, 0, len(candidates))
	for _, c := range candidates {
		units = append(units, c.unit)
		if limit > 0 && len(units) >= limit {
			break
		}
	}
	return units, nil
}

// --- Comparisons (append-only) ---

// AppendComparison persists one cross-issue comparison
func (s *Store) AppendComparison(c model.CrossIssueComparison) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixComparison+c.UnitID+":"+c.ID, c)
	})
}

// ComparisonsForUnit returns the full comparison audit trail of a unit
func (s *Store) ComparisonsForUnit(unitID string) ([]model.CrossIssueComparison, error) {
	var out []model.CrossIssueComparison
	err := s.scanPrefix(prefixComparison+unitID+":", func(val []byte) error {
		var c model.CrossIssueComparison
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// --- Adjustments (append-only) ---

// AppendAdjustment persists one confidence adjustment record
func (s *Store) AppendAdjustment(a model.ConfidenceAdjustment) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, adjustmentKey(a), a)
	})
}

func adjustmentKey(a model.ConfidenceAdjustment) string {
	return prefixAdjustment + a.EntityType + ":" + a.EntityID + ":" + a.ID
}

// AdjustmentsFor returns the adjustment history of one entity
func (s *Store) AdjustmentsFor(entityType, entityID string) ([]model.ConfidenceAdjustment, error) {
	var out []model.ConfidenceAdjustment
	err := s.scanPrefix(prefixAdjustment+entityType+":"+entityID+":", func(val []byte) error {
		var a model.ConfidenceAdjustment
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Learnings ---

// GetLearning retrieves one aggregate learning; ErrNotFound when absent
func (s *Store) GetLearning(category, key string) (model.SystemLearning, error) {
	var l model.SystemLearning
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixLearning+category+":"+key, &l)
	})
	return l, err
}

// --- Sources ---

// PutSource persists a source record
func (s *Store) PutSource(src model.Source) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixSource+src.ID, src)
	})
}

// GetSource retrieves a source by ID
func (s *Store) GetSource(id string) (model.Source, error) {
	var src model.Source
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixSource+id, &src)
	})
	return src, err
}

// --- Feedback events ---

// EnqueueFeedback persists a pending feedback event
func (s *Store) EnqueueFeedback(e model.FeedbackEvent) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixEvent+e.ID, e)
	})
}

// GetFeedbackEvent retrieves one feedback event by ID
func (s *Store) GetFeedbackEvent(id string) (model.FeedbackEvent, error) {
	var e model.FeedbackEvent
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixEvent+id, &e)
	})
	return e, err
}

// PendingFeedback returns up to limit unprocessed events, oldest first
func (s *Store) PendingFeedback(limit int) ([]model.FeedbackEvent, error) {
	var out []model.FeedbackEvent
	err := s.scanPrefix(prefixEvent, func(val []byte) error {
		var e model.FeedbackEvent
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if !e.Processed {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Dedup counter ---

// IncrDedupeSkips bumps the count of patterns rejected as duplicates
func (s *Store) IncrDedupeSkips() error {
	return s.db.Update(func(txn *badger.Txn) error {
		var n uint64
		item, err := txn.Get([]byte(keyDedupeSkips))
		if err == nil {
			_ = item.Value(func(val []byte) error {
				if len(val) == 8 {
					n = binary.BigEndian.Uint64(val)
				}
				return nil
			})
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n+1)
		return txn.Set([]byte(keyDedupeSkips), buf)
	})
}

// DedupeSkips returns the total number of duplicate rejections
func (s *Store) DedupeSkips() (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyDedupeSkips))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				n = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	return n, err
}
