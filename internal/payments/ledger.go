package payments

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/feastly/feastly/internal/domain"
)

// TransactionLedger is the append-biased record of payment outcomes.
// The unique index on reference_id is the idempotency arbiter: inserts
// race safely because the database, not a read-then-write check,
// decides which delivery wins.
type TransactionLedger struct {
	db *sql.DB
}

func NewTransactionLedger(db *sql.DB) *TransactionLedger {
	return &TransactionLedger{db: db}
}

// Record inserts txn if no row exists for its reference id. It reports
// whether a row was inserted; false means a duplicate delivery.
func (l *TransactionLedger) Record(ctx context.Context, txn *domain.Transaction) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions (id, order_id, user_email, reference_id, amount, currency, status, provider, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reference_id) DO NOTHING
	`, uuid.New().String(), txn.OrderID, txn.UserEmail, txn.ReferenceID, txn.Amount, txn.Currency, txn.Status, txn.Provider, txn.CreatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// GetByReference returns the transaction for a provider reference id,
// or nil if none exists.
func (l *TransactionLedger) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	txn := &domain.Transaction{}

	err := l.db.QueryRowContext(ctx, `
		SELECT order_id, user_email, reference_id, amount, currency, status, provider, created_at
		FROM transactions
		WHERE reference_id = $1
	`, referenceID).Scan(&txn.OrderID, &txn.UserEmail, &txn.ReferenceID, &txn.Amount, &txn.Currency,
		&txn.Status, &txn.Provider, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return txn, nil
}

// Resolve moves an existing PENDING row to a terminal status. A row
// already terminal is left untouched; the condition is part of the
// UPDATE so concurrent resolvers cannot both win. Record only ever
// inserts terminal statuses, so PENDING rows come from outside the
// webhook path.
func (l *TransactionLedger) Resolve(ctx context.Context, referenceID string, status domain.TransactionStatus) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2
		WHERE reference_id = $1 AND status = $3
	`, referenceID, status, domain.TransactionStatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
