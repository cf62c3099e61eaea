package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

// ReconcileStale re-verifies rows left initializing or pending for longer
// than olderThan. Initializing rows the processor never heard of are
// abandoned. Per-row failures are counted and do not stop the sweep.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*model.ReconcileReport, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	rows, err := s.transactions.FindStale(ctx, []model.Status{model.StatusInitializing, model.StatusPending}, cutoff, limit)
	if err != nil {
		return nil, err
	}

	report := &model.ReconcileReport{}
	for i := range rows {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++

		result, err := s.reconcileOne(ctx, &rows[i])
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("reference", rows[i].PaymentReference).Msg("reconcile failed")
			continue
		}
		if result.Outcome == model.OutcomeProcessed && result.NewStatus.IsTerminal() {
			report.Settled++
		} else {
			report.Unchanged++
		}
	}

	log.Info().
		Int("scanned", report.Scanned).
		Int("settled", report.Settled).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Msg("reconcile sweep finished")
	return report, nil
}

func (s *PaymentService) reconcileOne(ctx context.Context, tx *model.Transaction) (*model.TransitionResult, error) {
	processor, err := s.providers.Get(tx.Provider)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.processorTimeout)
	res, err := processor.VerifyTransaction(pctx, tx)
	cancel()
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("verify %s: %w", tx.PaymentReference, err)
		}
		if tx.Status != model.StatusInitializing {
			return &model.TransitionResult{Outcome: model.OutcomeNoChange, OldStatus: tx.Status, NewStatus: tx.Status, Transaction: tx}, nil
		}
		return s.applyTransition(ctx, tx, transition{
			status: model.StatusAbandoned,
			metadata: map[string]interface{}{
				"reconciled_at":    s.now().UTC().Format(time.RFC3339),
				"reconcile_reason": "unknown to processor",
			},
			source: "reconcile",
		})
	}

	md := s.verifyMetadata(tx, res)
	md["reconciled_at"] = s.now().UTC().Format(time.RFC3339)
	return s.applyTransition(ctx, tx, transition{
		status:   res.Status,
		metadata: md,
		source:   "reconcile",
	})
}

// RunReconciler sweeps every interval until ctx is done.
func (s *PaymentService) RunReconciler(ctx context.Context, interval, olderThan time.Duration, limit int) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := s.ReconcileStale(ctx, olderThan, limit); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reconcile sweep failed")
			}
		}
	}
}
