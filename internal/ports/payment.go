package ports

import (
	"context"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
)

type IPaymentProcessor interface {
	Name() model.PaymentProvider
	InitializeTransaction(ctx context.Context, req model.InitializeRequest) (*model.InitializeResponse, error)
	// VerifyTransaction returns ErrNotFound when the processor has no record
	// of the transaction.
	VerifyTransaction(ctx context.Context, tx *model.Transaction) (*model.VerifyResponse, error)
	ParseWebhook(ctx context.Context, raw []byte, headers map[string][]string) (*model.PaymentEvent, error)
}

type IEventPublisher interface {
	PublishStatusChanged(ctx context.Context, event model.StatusChangedEvent) error
	Close() error
}
