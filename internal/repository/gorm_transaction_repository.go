package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

// TransactionRow is the gorm mapping of payment_transactions. It matches the
// SQL migration so both repositories can share one database.
type TransactionRow struct {
	ID               string            `gorm:"primaryKey;type:varchar(36)"`
	UserID           string            `gorm:"not null;index"`
	Amount           decimal.Decimal   `gorm:"type:numeric(12,2);not null"`
	Currency         string            `gorm:"type:char(3);not null"`
	Email            string            `gorm:"not null"`
	PaymentReference string            `gorm:"uniqueIndex;not null"`
	Provider         string            `gorm:"not null"`
	ProcessorID      string            `gorm:"not null;default:''"`
	AuthorizationURL string            `gorm:"not null;default:''"`
	Status           string            `gorm:"not null;index"`
	Metadata         datatypes.JSONMap `gorm:"not null"`
	Version          int               `gorm:"not null;default:1"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (TransactionRow) TableName() string { return "payment_transactions" }

type GormTransactionRepository struct {
	db *gorm.DB
}

var _ ports.ITransactionRepository = (*GormTransactionRepository)(nil)

func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// AutoMigrate creates the table for sqlite and local development. Postgres
// deployments use the SQL migrations instead.
func (r *GormTransactionRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&TransactionRow{})
}

func (r *GormTransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	row := toRow(tx)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: duplicate payment reference %s", ports.ErrPersistence, tx.PaymentReference)
		}
		return fmt.Errorf("%w: insert transaction: %v", ports.ErrPersistence, err)
	}
	tx.CreatedAt = row.CreatedAt
	tx.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *GormTransactionRepository) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormTransactionRepository) FindByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	return r.first(ctx, "payment_reference = ?", reference)
}

func (r *GormTransactionRepository) first(ctx context.Context, cond string, arg string) (*model.Transaction, error) {
	var row TransactionRow
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("%w: error getting transaction: %v", ports.ErrPersistence, err)
	}
	return row.toModel(), nil
}

func (r *GormTransactionRepository) FindStale(ctx context.Context, statuses []model.Status, before time.Time, limit int) ([]model.Transaction, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var rows []TransactionRow
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", names, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: error querying stale transactions: %v", ports.ErrPersistence, err)
	}

	out := make([]model.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

func (r *GormTransactionRepository) CompareAndSwap(ctx context.Context, upd model.StatusUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(upd.Status),
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	if upd.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(upd.Metadata)
	}
	if upd.PaymentReference != "" {
		updates["payment_reference"] = upd.PaymentReference
	}
	if upd.ProcessorID != "" {
		updates["processor_id"] = upd.ProcessorID
	}
	if upd.AuthorizationURL != "" {
		updates["authorization_url"] = upd.AuthorizationURL
	}

	res := r.db.WithContext(ctx).
		Model(&TransactionRow{}).
		Where("id = ? AND status = ? AND version = ?", upd.ID, string(upd.ExpectedStatus), upd.ExpectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%w: failed to update transaction status: %v", ports.ErrPersistence, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func toRow(tx *model.Transaction) TransactionRow {
	md := datatypes.JSONMap(tx.Metadata)
	if md == nil {
		md = datatypes.JSONMap{}
	}
	return TransactionRow{
		ID:               tx.ID,
		UserID:           tx.UserID,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		Email:            tx.Email,
		PaymentReference: tx.PaymentReference,
		Provider:         string(tx.Provider),
		ProcessorID:      tx.ProcessorID,
		AuthorizationURL: tx.AuthorizationURL,
		Status:           string(tx.Status),
		Metadata:         md,
		Version:          tx.Version,
		CreatedAt:        tx.CreatedAt,
	}
}

func (row *TransactionRow) toModel() *model.Transaction {
	md := map[string]interface{}(row.Metadata)
	if md == nil {
		md = map[string]interface{}{}
	}
	return &model.Transaction{
		ID:               row.ID,
		UserID:           row.UserID,
		Amount:           row.Amount,
		Currency:         row.Currency,
		Email:            row.Email,
		PaymentReference: row.PaymentReference,
		Provider:         model.PaymentProvider(row.Provider),
		ProcessorID:      row.ProcessorID,
		AuthorizationURL: row.AuthorizationURL,
		Status:           model.Status(row.Status),
		Metadata:         md,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}
