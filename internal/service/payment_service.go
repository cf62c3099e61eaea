package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/core"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

const defaultProcessorTimeout = 10 * time.Second

type Options struct {
	// ProcessorTimeout bounds each outbound processor call.
	ProcessorTimeout time.Duration
	Now              func() time.Time
	NewReference     func(provider model.PaymentProvider) string
}

type PaymentService struct {
	providers    *core.ProviderRegistry
	transactions ports.ITransactionRepository
	publisher    ports.IEventPublisher

	processorTimeout time.Duration
	now              func() time.Time
	newReference     func(provider model.PaymentProvider) string
}

func NewPaymentService(providers *core.ProviderRegistry, transactions ports.ITransactionRepository, publisher ports.IEventPublisher, opts Options) *PaymentService {
	s := &PaymentService{
		providers:        providers,
		transactions:     transactions,
		publisher:        publisher,
		processorTimeout: opts.ProcessorTimeout,
		now:              opts.Now,
		newReference:     opts.NewReference,
	}
	if s.processorTimeout <= 0 {
		s.processorTimeout = defaultProcessorTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newReference == nil {
		s.newReference = NewReference
	}
	return s
}

// NewReference returns a reference such as "pk-3f2a..." for paystack. Only
// letters, digits and '-' are used, which every supported processor accepts.
func NewReference(provider model.PaymentProvider) string {
	prefix := "tx"
	if len(provider) >= 2 {
		prefix = string(provider[:1]) + string(provider[len(provider)-1:])
	}
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Initiate records a provisional row, opens a checkout with the processor and
// promotes the row to pending. A failed processor call marks the row failed.
// If the call is interrupted or the promotion fails, the row stays
// initializing for ReconcileStale.
func (s *PaymentService) Initiate(ctx context.Context, userID string, provider model.PaymentProvider, req model.InitiateRequest) (*model.InitiateResponse, error) {
	if userID == "" {
		return nil, ports.ErrUnauthenticated
	}
	req, err := validateInitiate(req)
	if err != nil {
		return nil, err
	}
	processor, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		ID:               uuid.NewString(),
		UserID:           userID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Email:            req.Email,
		PaymentReference: s.newReference(provider),
		Provider:         provider,
		Status:           model.StatusInitializing,
		Metadata:         model.MergeMetadata(req.Metadata, nil),
		Version:          1,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	logger := log.With().Str("reference", tx.PaymentReference).Str("provider", string(provider)).Logger()

	pctx, cancel := context.WithTimeout(ctx, s.processorTimeout)
	res, err := processor.InitializeTransaction(pctx, model.InitializeRequest{
		Reference:   tx.PaymentReference,
		AmountMinor: tx.MinorAmount(),
		Currency:    tx.Currency,
		Email:       tx.Email,
		Metadata:    req.Metadata,
	})
	cancel()
	if err == nil && (res.Reference == "" || res.AuthorizationURL == "") {
		err = fmt.Errorf("%w: processor returned no reference or checkout url", ports.ErrUpstream)
	}
	if err != nil {
		if !errors.Is(err, ports.ErrUpstream) {
			err = fmt.Errorf("%w: %w", ports.ErrUpstream, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// the processor may still have opened the checkout
			logger.Warn().Err(err).Msg("processor initialize interrupted, leaving row for reconciliation")
			return nil, err
		}
		logger.Error().Err(err).Msg("processor initialize failed")
		s.markFailed(context.WithoutCancel(ctx), tx, err)
		return nil, err
	}

	// the processor already holds the checkout, so finish even if the caller left
	result, err := s.applyTransition(context.WithoutCancel(ctx), tx, transition{
		status:           model.StatusPending,
		reference:        res.Reference,
		processorID:      res.ProcessorID,
		authorizationURL: res.AuthorizationURL,
		source:           "initialize",
	})
	if err != nil {
		logger.Error().Err(err).Msg("processor initialized but row not promoted")
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	logger.Info().Str("outcome", string(result.Outcome)).Str("status", string(result.Transaction.Status)).Msg("payment initiated")
	return &model.InitiateResponse{
		Transaction:      result.Transaction,
		AuthorizationURL: res.AuthorizationURL,
	}, nil
}

func (s *PaymentService) markFailed(ctx context.Context, tx *model.Transaction, cause error) {
	_, err := s.applyTransition(ctx, tx, transition{
		status:   model.StatusFailed,
		metadata: map[string]interface{}{"failure_reason": cause.Error()},
		source:   "initialize",
	})
	if err != nil {
		log.Error().Err(err).Str("reference", tx.PaymentReference).Msg("failed to mark transaction failed")
	}
}

// Verify asks the processor for the current status and records it. Rows that
// are already terminal are returned as stored.
func (s *PaymentService) Verify(ctx context.Context, userID, reference string) (*model.Transaction, error) {
	tx, err := s.GetTransaction(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return tx, nil
	}

	processor, err := s.providers.Get(tx.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrUpstream, err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.processorTimeout)
	res, err := processor.VerifyTransaction(pctx, tx)
	cancel()
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			if tx.Status == model.StatusInitializing {
				// checkout not opened yet
				return tx, nil
			}
			return nil, fmt.Errorf("%w: processor has no record of %s", ports.ErrUpstream, tx.PaymentReference)
		}
		if !errors.Is(err, ports.ErrUpstream) {
			err = fmt.Errorf("%w: %w", ports.ErrUpstream, err)
		}
		return nil, err
	}

	result, err := s.applyTransition(ctx, tx, transition{
		status:   res.Status,
		metadata: s.verifyMetadata(tx, res),
		source:   "verify",
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("reference", tx.PaymentReference).
		Str("outcome", string(result.Outcome)).
		Str("old_status", string(result.OldStatus)).
		Str("new_status", string(result.NewStatus)).
		Msg("payment verified")
	return result.Transaction, nil
}

// GetTransaction returns the caller's transaction. Rows owned by someone
// else are reported as not found.
func (s *PaymentService) GetTransaction(ctx context.Context, userID, reference string) (*model.Transaction, error) {
	if userID == "" {
		return nil, ports.ErrUnauthenticated
	}
	reference, err := validateReference(reference)
	if err != nil {
		return nil, err
	}
	tx, err := s.transactions.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, ports.ErrNotFound
	}
	return tx, nil
}

func (s *PaymentService) verifyMetadata(tx *model.Transaction, res *model.VerifyResponse) map[string]interface{} {
	md := map[string]interface{}{
		"processor_status": res.RawStatus,
		"verified_at":      s.now().UTC().Format(time.RFC3339),
	}
	if res.PaidAt != "" {
		md["paid_at"] = res.PaidAt
	}
	if res.Channel != "" {
		md["channel"] = res.Channel
	}
	if len(res.Data) > 0 {
		md["processor_response"] = res.Data
	}
	if res.Amount > 0 {
		md["verified_amount"] = res.Amount
		md["verified_currency"] = res.Currency
		if amountMismatch(tx, res.Amount, res.Currency) {
			md["amount_mismatch"] = true
		}
	}
	return md
}

// amountMismatch reports whether a processor-confirmed amount differs from
// what was recorded at initiation.
func amountMismatch(tx *model.Transaction, minor int64, currency string) bool {
	if minor != tx.MinorAmount() {
		return true
	}
	return currency != "" && !strings.EqualFold(currency, tx.Currency)
}
