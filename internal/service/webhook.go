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

// HandleWebhook verifies and applies one processor callback. Deliveries are
// at-least-once: a repeat, or one that loses a race with Verify, reports
// already_processed and changes nothing.
func (s *PaymentService) HandleWebhook(ctx context.Context, provider model.PaymentProvider, raw []byte, headers map[string][]string) (*model.TransitionResult, error) {
	processor, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	event, err := processor.ParseWebhook(ctx, raw, headers)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("provider", string(provider)).Str("event", event.Type).Logger()
	if !event.Recognized {
		logger.Info().Str("outcome", string(model.OutcomeIgnored)).Msg("webhook ignored")
		return &model.TransitionResult{Outcome: model.OutcomeIgnored}, nil
	}
	logger = logger.With().Str("reference", event.Reference).Logger()

	tx, err := s.transactions.FindByReference(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// usually the processor beat our own commit; its retry will land later
			logger.Warn().Msg("webhook for unknown transaction")
		}
		return nil, err
	}
	if tx.Provider != provider {
		logger.Warn().Str("stored_provider", string(tx.Provider)).Msg("webhook provider does not own transaction")
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, event.Reference)
	}

	result, err := s.applyTransition(ctx, tx, transition{
		status:   event.Status,
		metadata: s.webhookMetadata(tx, event),
		source:   "webhook",
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply webhook")
		return nil, err
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Str("old_status", string(result.OldStatus)).
		Str("new_status", string(result.NewStatus)).
		Msg("webhook handled")

	if result.Outcome == model.OutcomeLostRace {
		result.Outcome = model.OutcomeAlreadyProcessed
	}
	return result, nil
}

func (s *PaymentService) webhookMetadata(tx *model.Transaction, event *model.PaymentEvent) map[string]interface{} {
	md := map[string]interface{}{
		"webhook_event":       event.Type,
		"webhook_received_at": s.now().UTC().Format(time.RFC3339),
	}
	if event.RawStatus != "" {
		md["processor_status"] = event.RawStatus
	}
	if event.PaidAt != "" {
		md["paid_at"] = event.PaidAt
	}
	if event.Channel != "" {
		md["channel"] = event.Channel
	}
	if len(event.Customer) > 0 {
		md["customer"] = event.Customer
	}
	if len(event.Metadata) > 0 {
		md["processor_metadata"] = event.Metadata
	}
	if event.Amount > 0 {
		md["confirmed_amount"] = event.Amount
		md["confirmed_currency"] = event.Currency
		if amountMismatch(tx, event.Amount, event.Currency) {
			log.Warn().
				Str("reference", tx.PaymentReference).
				Int64("expected_amount", tx.MinorAmount()).
				Int64("confirmed_amount", event.Amount).
				Str("expected_currency", tx.Currency).
				Str("confirmed_currency", event.Currency).
				Msg("webhook amount does not match transaction")
			md["amount_mismatch"] = true
		}
	}
	return md
}
