package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
)

type transition struct {
	status           model.Status
	metadata         map[string]interface{}
	reference        string
	processorID      string
	authorizationURL string
	source           string
}

// applyTransition is the only path that writes a status. Every write is a
// compare-and-swap on the status and version read in current, so a terminal
// row is never overwritten whichever caller arrives last.
//
// An unknown status from a processor never replaces the stored one; only the
// metadata is refreshed.
func (s *PaymentService) applyTransition(ctx context.Context, current *model.Transaction, t transition) (*model.TransitionResult, error) {
	result := &model.TransitionResult{
		OldStatus:   current.Status,
		NewStatus:   current.Status,
		Transaction: current,
	}
	if current.Status.IsTerminal() {
		result.Outcome = model.OutcomeAlreadyProcessed
		return result, nil
	}

	next := t.status
	if next == model.StatusUnknown || next == "" {
		next = current.Status
	}
	switch {
	case next == current.Status:
		if len(t.metadata) == 0 && t.reference == "" {
			result.Outcome = model.OutcomeNoChange
			return result, nil
		}
	case !current.Status.CanTransition(next):
		log.Warn().
			Str("reference", current.PaymentReference).
			Str("from", string(current.Status)).
			Str("to", string(next)).
			Str("source", t.source).
			Msg("ignoring disallowed status transition")
		result.Outcome = model.OutcomeNoChange
		return result, nil
	}

	upd := model.StatusUpdate{
		ID:               current.ID,
		ExpectedStatus:   current.Status,
		ExpectedVersion:  current.Version,
		Status:           next,
		PaymentReference: t.reference,
		ProcessorID:      t.processorID,
		AuthorizationURL: t.authorizationURL,
	}
	if len(t.metadata) > 0 {
		upd.Metadata = model.MergeMetadata(current.Metadata, t.metadata)
	}

	ok, err := s.transactions.CompareAndSwap(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	if !ok {
		result.Outcome = model.OutcomeLostRace
		if latest, err := s.transactions.FindByID(ctx, current.ID); err == nil {
			result.Transaction = latest
			result.NewStatus = latest.Status
		} else {
			log.Warn().Err(err).Str("reference", current.PaymentReference).Msg("failed to reload transaction after lost race")
		}
		return result, nil
	}

	updated := *current
	updated.Status = next
	updated.Version = current.Version + 1
	updated.UpdatedAt = s.now().UTC()
	if upd.Metadata != nil {
		updated.Metadata = upd.Metadata
	}
	if t.reference != "" {
		updated.PaymentReference = t.reference
	}
	if t.processorID != "" {
		updated.ProcessorID = t.processorID
	}
	if t.authorizationURL != "" {
		updated.AuthorizationURL = t.authorizationURL
	}

	result.Transaction = &updated
	result.NewStatus = next
	if next == current.Status {
		result.Outcome = model.OutcomeRefreshed
	} else {
		result.Outcome = model.OutcomeProcessed
	}

	if next.IsTerminal() {
		s.publish(ctx, current.Status, &updated, t.source)
	}
	return result, nil
}

func (s *PaymentService) publish(ctx context.Context, old model.Status, tx *model.Transaction, source string) {
	if s.publisher == nil {
		return
	}
	event := model.StatusChangedEvent{
		TransactionID:    tx.ID,
		UserID:           tx.UserID,
		PaymentReference: tx.PaymentReference,
		Provider:         tx.Provider,
		OldStatus:        old,
		NewStatus:        tx.Status,
		Amount:           tx.Amount.StringFixed(2),
		Currency:         tx.Currency,
		Source:           source,
		OccurredAt:       s.now().UTC(),
	}
	// the row is already committed; a lost event is logged, not returned
	if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
		log.Error().Err(err).Str("reference", tx.PaymentReference).Msg("failed to publish status change")
	}
}
