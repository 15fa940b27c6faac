// Package feedback folds downstream outcome events back into stored
// confidence fields. Every applied change is bounded, audited, and applied
// exactly once per event.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/tectonic/internal/events"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/store"
)

// Multipliers per feedback verdict/outcome
const (
	verificationCorroborated = 1.05
	verificationContested    = 0.85

	solutionEffective   = 1.08
	solutionIneffective = 0.90

	// Learning rate cap for blending dynamic reliability toward an
	// observed accuracy ratio
	maxLearningRate = 0.3
)

// Materiality thresholds: changes below these are applied but not audited
const (
	confidenceMateriality  = 0.001
	reliabilityMateriality = 0.01
)

// Processor drains pending feedback events against the store
type Processor struct {
	store *store.Store
	bus   *events.Bus
}

// NewProcessor creates a feedback processor. bus may be nil.
func NewProcessor(s *store.Store, bus *events.Bus) *Processor {
	return &Processor{store: s, bus: bus}
}

// Summary reports one drain of the pending queue
type Summary struct {
	Processed int
	Failed    int
	Skipped   int // Already processed by a previous run
}

// ProcessPending applies every pending event in creation order. Events whose
// rules fail are marked processed with the error recorded so a bad event
// cannot wedge the queue.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (*Summary, error) {
	pending, err := p.store.PendingFeedback(limit)
	if err != nil {
		return nil, fmt.Errorf("feedback: list pending: %w", err)
	}

	summary := &Summary{}
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		err := p.store.ProcessEvent(event.ID, p.apply)
		switch {
		case errors.Is(err, store.ErrAlreadyProcessed):
			summary.Skipped++
			continue
		case err != nil:
			return summary, fmt.Errorf("feedback: process %s: %w", event.ID, err)
		}

		// Re-read to learn whether the rules succeeded
		if e, err := p.store.GetFeedbackEvent(event.ID); err == nil && e.Error != "" {
			summary.Failed++
		} else {
			summary.Processed++
		}

		if p.bus != nil {
			p.bus.Publish(events.TopicFeedbackProcessed, event.ID)
		}
	}
	return summary, nil
}

// apply dispatches one event to its kind's rule inside the store transaction
func (p *Processor) apply(tx *store.Txn, event model.FeedbackEvent) error {
	switch event.Kind {
	case model.FeedbackVerificationResult:
		return p.applyVerification(tx, event)
	case model.FeedbackSourceAccuracy:
		return p.applySourceAccuracy(tx, event)
	case model.FeedbackSolutionOutcome:
		return p.applySolutionOutcome(tx, event)
	case model.FeedbackPlaybookExecution:
		return p.applyPlaybookExecution(tx, event)
	case model.FeedbackManualCorrection:
		return p.applyManualCorrection(tx, event)
	default:
		return fmt.Errorf("unknown feedback kind %q", event.Kind)
	}
}

// applyVerification multiplies pattern confidence by the verdict's factor and
// folds the outcome into the per-pattern-type learning
func (p *Processor) applyVerification(tx *store.Txn, event model.FeedbackEvent) error {
	factor := 1.0
	success := false
	switch event.Payload.Verdict {
	case "corroborated":
		factor = verificationCorroborated
		success = true
	case "contested":
		factor = verificationContested
	case "inconclusive":
		factor = 1.0
	default:
		return fmt.Errorf("unknown verification verdict %q", event.Payload.Verdict)
	}

	pattern, err := tx.GetPattern(event.EntityID)
	if err != nil {
		return fmt.Errorf("load pattern %s: %w", event.EntityID, err)
	}

	previous := pattern.Confidence
	pattern.Confidence = model.Clamp01(previous * factor)
	pattern.UpdatedAt = time.Now().UTC()
	if err := tx.SetPattern(pattern); err != nil {
		return err
	}

	if err := p.audit(tx, event, "pattern", pattern.ID, "confidence", previous, pattern.Confidence,
		fmt.Sprintf("verification %s", event.Payload.Verdict), confidenceMateriality); err != nil {
		return err
	}

	return tx.UpsertLearning("pattern_verification", "pattern_type:"+string(pattern.Type),
		func(l *model.SystemLearning) {
			l.RecordSample(success, pattern.Confidence, 0, 0)
		})
}

// applySourceAccuracy blends the source's dynamic reliability toward the
// observed accuracy ratio, with a learning rate scaled by how confident the
// verifier was
func (p *Processor) applySourceAccuracy(tx *store.Txn, event model.FeedbackEvent) error {
	if event.Payload.AccuracyRatio == nil {
		return errors.New("source_accuracy event missing accuracy_ratio")
	}
	ratio := model.Clamp01(*event.Payload.AccuracyRatio)

	confidence := 1.0
	if event.Payload.Confidence != nil {
		confidence = model.Clamp01(*event.Payload.Confidence)
	}
	rate := math.Min(maxLearningRate, maxLearningRate*confidence)

	source, err := tx.GetSource(event.EntityID)
	if err != nil {
		return fmt.Errorf("load source %s: %w", event.EntityID, err)
	}

	previous := source.EffectiveCredibility()
	source.DynamicReliability = model.Clamp01(previous + (ratio-previous)*rate)
	source.UpdatedAt = time.Now().UTC()
	if err := tx.SetSource(source); err != nil {
		return err
	}

	return p.audit(tx, event, "source", source.ID, "dynamic_reliability", previous, source.DynamicReliability,
		fmt.Sprintf("accuracy ratio %.2f at learning rate %.2f", ratio, rate), reliabilityMateriality)
}

// applySolutionOutcome multiplies pattern confidence by the outcome's factor
func (p *Processor) applySolutionOutcome(tx *store.Txn, event model.FeedbackEvent) error {
	factor := 1.0
	success := false
	switch event.Payload.Outcome {
	case "effective":
		factor = solutionEffective
		success = true
	case "partial":
		factor = 1.0
		success = true
	case "ineffective":
		factor = solutionIneffective
	default:
		return fmt.Errorf("unknown solution outcome %q", event.Payload.Outcome)
	}

	pattern, err := tx.GetPattern(event.EntityID)
	if err != nil {
		return fmt.Errorf("load pattern %s: %w", event.EntityID, err)
	}

	previous := pattern.Confidence
	pattern.Confidence = model.Clamp01(previous * factor)
	pattern.UpdatedAt = time.Now().UTC()
	if err := tx.SetPattern(pattern); err != nil {
		return err
	}

	if err := p.audit(tx, event, "pattern", pattern.ID, "confidence", previous, pattern.Confidence,
		fmt.Sprintf("solution outcome %s", event.Payload.Outcome), confidenceMateriality); err != nil {
		return err
	}

	effectiveness := 0.0
	if event.Payload.Effectiveness != nil {
		effectiveness = model.Clamp01(*event.Payload.Effectiveness)
	}
	return tx.UpsertLearning("solution_outcome", "pattern_type:"+string(pattern.Type),
		func(l *model.SystemLearning) {
			l.RecordSample(success, pattern.Confidence, effectiveness, 0)
		})
}

// applyPlaybookExecution records the run into the playbook's learning;
// playbook outcomes never touch confidence directly
func (p *Processor) applyPlaybookExecution(tx *store.Txn, event model.FeedbackEvent) error {
	playbookID := event.Payload.PlaybookID
	if playbookID == "" {
		playbookID = event.EntityID
	}
	if playbookID == "" {
		return errors.New("playbook_execution event missing playbook id")
	}

	success := event.Payload.Success != nil && *event.Payload.Success
	effectiveness := 0.0
	if event.Payload.Effectiveness != nil {
		effectiveness = model.Clamp01(*event.Payload.Effectiveness)
	}

	return tx.UpsertLearning("playbook_execution", "playbook:"+playbookID,
		func(l *model.SystemLearning) {
			l.RecordSample(success, 0, effectiveness, 0)
		})
}

// applyManualCorrection sets the named field to an absolute value
func (p *Processor) applyManualCorrection(tx *store.Txn, event model.FeedbackEvent) error {
	if event.Payload.Value == nil {
		return errors.New("manual_correction event missing value")
	}
	value := model.Clamp01(*event.Payload.Value)

	reason := "manual correction"
	if event.Payload.Note != "" {
		reason = "manual correction: " + event.Payload.Note
	}

	switch event.EntityType {
	case "pattern":
		pattern, err := tx.GetPattern(event.EntityID)
		if err != nil {
			return fmt.Errorf("load pattern %s: %w", event.EntityID, err)
		}
		previous := pattern.Confidence
		pattern.Confidence = value
		pattern.UpdatedAt = time.Now().UTC()
		if err := tx.SetPattern(pattern); err != nil {
			return err
		}
		return p.audit(tx, event, "pattern", pattern.ID, "confidence", previous, value, reason, 0)

	case "unit":
		unit, err := tx.GetUnit(event.EntityID)
		if err != nil {
			return fmt.Errorf("load unit %s: %w", event.EntityID, err)
		}
		previous := unit.Confidence
		unit.Confidence = value
		unit.UpdateCount++
		if err := tx.SetUnit(unit); err != nil {
			return err
		}
		return p.audit(tx, event, "unit", unit.ID, "confidence", previous, value, reason, 0)

	case "source":
		source, err := tx.GetSource(event.EntityID)
		if err != nil {
			return fmt.Errorf("load source %s: %w", event.EntityID, err)
		}
		previous := source.EffectiveCredibility()
		source.DynamicReliability = value
		source.UpdatedAt = time.Now().UTC()
		if err := tx.SetSource(source); err != nil {
			return err
		}
		return p.audit(tx, event, "source", source.ID, "dynamic_reliability", previous, value, reason, 0)

	default:
		return fmt.Errorf("manual_correction on unsupported entity type %q", event.EntityType)
	}
}

// audit writes one adjustment record when the change clears the field's
// materiality threshold. A threshold of zero always records.
func (p *Processor) audit(tx *store.Txn, event model.FeedbackEvent, entityType, entityID, field string, previous, current float64, reason string, threshold float64) error {
	if math.Abs(current-previous) < threshold {
		return nil
	}
	return tx.AppendAdjustment(model.ConfidenceAdjustment{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		Previous:   previous,
		New:        current,
		Reason:     reason,
		EventID:    event.ID,
		CreatedAt:  time.Now().UTC(),
	})
}
