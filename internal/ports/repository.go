package ports

import (
	"context"
	"time"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
)

type ITransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	FindByID(ctx context.Context, id string) (*model.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*model.Transaction, error)
	// FindStale lists rows in one of statuses created before the cutoff,
	// oldest first.
	FindStale(ctx context.Context, statuses []model.Status, before time.Time, limit int) ([]model.Transaction, error)
	// CompareAndSwap applies upd only if the row still matches its expected
	// status and version. It reports whether a row was written.
	CompareAndSwap(ctx context.Context, upd model.StatusUpdate) (bool, error)
}
