package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/model"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
)

// Queryable is the part of *pgxpool.Pool the repository uses. pgx.Tx
// satisfies it as well.
type Queryable interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

const transactionColumns = `id, user_id, amount::text, currency, email, payment_reference, provider,
	processor_id, authorization_url, status, metadata, version, created_at, updated_at`

const uniqueViolation = "23505"

type TransactionRepository struct {
	db Queryable
}

var _ ports.ITransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(db Queryable) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	var (
		fields []string
		values []interface{}
		params []string
		pos    = 1 // PostgreSQL parameter position counter
	)
	add := func(field string, value interface{}, cast string) {
		fields = append(fields, field)
		values = append(values, value)
		params = append(params, fmt.Sprintf("$%d%s", pos, cast))
		pos++
	}

	add("id", tx.ID, "")
	add("user_id", tx.UserID, "")
	add("amount", tx.Amount.String(), "::numeric")
	add("currency", tx.Currency, "")
	add("email", tx.Email, "")
	add("payment_reference", tx.PaymentReference, "")
	add("provider", string(tx.Provider), "")
	add("status", string(tx.Status), "")
	add("version", tx.Version, "")

	// Optional fields
	if tx.ProcessorID != "" {
		add("processor_id", tx.ProcessorID, "")
	}
	if tx.AuthorizationURL != "" {
		add("authorization_url", tx.AuthorizationURL, "")
	}
	if tx.Metadata != nil {
		add("metadata", tx.Metadata, "")
	}
	if !tx.CreatedAt.IsZero() {
		add("created_at", tx.CreatedAt, "")
	}

	query := fmt.Sprintf(`
        INSERT INTO payment_transactions (%s)
        VALUES (%s)
        RETURNING created_at, updated_at`,
		strings.Join(fields, ", "),
		strings.Join(params, ", "),
	)

	err := r.db.QueryRow(ctx, query, values...).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: duplicate payment reference %s", ports.ErrPersistence, tx.PaymentReference)
		}
		return fmt.Errorf("%w: insert transaction: %v", ports.ErrPersistence, err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	return r.findOne(ctx, sql, id)
}

func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE payment_reference = $1`
	return r.findOne(ctx, sql, reference)
}

func (r *TransactionRepository) findOne(ctx context.Context, sql string, arg string) (*model.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("%w: error getting transaction: %v", ports.ErrPersistence, err)
	}
	return tx, nil
}

func (r *TransactionRepository) FindStale(ctx context.Context, statuses []model.Status, before time.Time, limit int) ([]model.Transaction, error) {
	const sql = `
        SELECT ` + transactionColumns + `
        FROM payment_transactions
        WHERE status = ANY($1) AND created_at < $2
        ORDER BY created_at ASC
        LIMIT $3`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.Query(ctx, sql, names, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: error querying stale transactions: %v", ports.ErrPersistence, err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: error scanning transaction: %v", ports.ErrPersistence, err)
		}
		transactions = append(transactions, *tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows iteration error: %v", ports.ErrPersistence, err)
	}

	return transactions, nil
}

func (r *TransactionRepository) CompareAndSwap(ctx context.Context, upd model.StatusUpdate) (bool, error) {
	var (
		query strings.Builder
		args  []interface{}
		pos   = 1 // Tracks placeholder position
	)
	set := func(field string, value interface{}) {
		fmt.Fprintf(&query, ", %s = $%d", field, pos)
		args = append(args, value)
		pos++
	}

	query.WriteString(`UPDATE payment_transactions SET version = version + 1, updated_at = NOW()`)
	set("status", string(upd.Status))
	if upd.Metadata != nil {
		set("metadata", upd.Metadata)
	}
	if upd.PaymentReference != "" {
		set("payment_reference", upd.PaymentReference)
	}
	if upd.ProcessorID != "" {
		set("processor_id", upd.ProcessorID)
	}
	if upd.AuthorizationURL != "" {
		set("authorization_url", upd.AuthorizationURL)
	}

	fmt.Fprintf(&query, " WHERE id = $%d AND status = $%d AND version = $%d", pos, pos+1, pos+2)
	args = append(args, upd.ID, string(upd.ExpectedStatus), upd.ExpectedVersion)

	tag, err := r.db.Exec(ctx, query.String(), args...)
	if err != nil {
		return false, fmt.Errorf("%w: failed to update transaction status: %v", ports.ErrPersistence, err)
	}

	// Zero rows means another writer got there first
	return tag.RowsAffected() == 1, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx       model.Transaction
		amount   string
		provider string
		status   string
	)
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&amount,
		&tx.Currency,
		&tx.Email,
		&tx.PaymentReference,
		&provider,
		&tx.ProcessorID,
		&tx.AuthorizationURL,
		&status,
		&tx.Metadata,
		&tx.Version,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Provider = model.PaymentProvider(provider)
	tx.Status = model.Status(status)
	if tx.Metadata == nil {
		tx.Metadata = map[string]interface{}{}
	}
	return &tx, nil
}
