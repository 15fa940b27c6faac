package store

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mkravets/tectonic/internal/model"
)

// ErrAlreadyProcessed is returned when ProcessEvent sees an event that was
// already marked processed
var ErrAlreadyProcessed = errors.New("feedback event already processed")

// Txn exposes typed reads and writes inside one store transaction. Used by
// the feedback processor so an event's confidence change, its audit record
// and the processed flag commit or fail together.
type Txn struct {
	txn *badger.Txn
}

// GetPattern retrieves a pattern inside the transaction
func (t *Txn) GetPattern(id string) (model.Pattern, error) {
	var p model.Pattern
	err := getJSON(t.txn, prefixPattern+id, &p)
	return p, err
}

// SetPattern writes a pattern inside the transaction
func (t *Txn) SetPattern(p model.Pattern) error {
	return putJSON(t.txn, prefixPattern+p.ID, p)
}

// GetUnit retrieves an information unit inside the transaction
func (t *Txn) GetUnit(id string) (model.InformationUnit, error) {
	var u model.InformationUnit
	err := getJSON(t.txn, prefixUnit+id, &u)
	return u, err
}

// SetUnit writes an information unit inside the transaction
func (t *Txn) SetUnit(u model.InformationUnit) error {
	return putJSON(t.txn, prefixUnit+u.ID, u)
}

// GetSource retrieves a source inside the transaction
func (t *Txn) GetSource(id string) (model.Source, error) {
	var s model.Source
	err := getJSON(t.txn, prefixSource+id, &s)
	return s, err
}

// SetSource writes a source inside the transaction
func (t *Txn) SetSource(s model.Source) error {
	return putJSON(t.txn, prefixSource+s.ID, s)
}

// AppendAdjustment writes an adjustment record inside the transaction
func (t *Txn) AppendAdjustment(a model.ConfidenceAdjustment) error {
	return putJSON(t.txn, adjustmentKey(a), a)
}

// UpsertLearning loads the (category, key) learning, applies mutate, and
// writes it back inside the transaction
func (t *Txn) UpsertLearning(category, key string, mutate func(*model.SystemLearning)) error {
	storeKey := prefixLearning + category + ":" + key

	l := model.SystemLearning{Category: category, Key: key}
	if err := getJSON(t.txn, storeKey, &l); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	mutate(&l)
	l.UpdatedAt = time.Now().UTC()
	return putJSON(t.txn, storeKey, l)
}

// ProcessEvent runs fn against the named feedback event inside a single
// transaction, then marks the event processed. An event already marked
// processed is skipped with ErrAlreadyProcessed, which makes re-running the
// processor safe: no event's adjustment can apply twice.
//
// When fn fails, the event is still marked processed with the error recorded
// on it; a poisoned event must not wedge the queue.
func (s *Store) ProcessEvent(eventID string, fn func(*Txn, model.FeedbackEvent) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var event model.FeedbackEvent
		if err := getJSON(txn, prefixEvent+eventID, &event); err != nil {
			return err
		}
		if event.Processed {
			return ErrAlreadyProcessed
		}

		t := &Txn{txn: txn}
		applyErr := fn(t, event)

		now := time.Now().UTC()
		event.Processed = true
		event.ProcessedAt = &now
		if applyErr != nil {
			event.Error = applyErr.Error()
		}
		return putJSON(txn, prefixEvent+event.ID, event)
	})
}
