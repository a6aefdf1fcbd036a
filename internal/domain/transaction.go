package domain

import "time"

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is the durable record of one payment provider outcome.
// ReferenceID is the provider's session id and acts as the idempotency
// key: at most one row ever exists per reference. OrderID is an
// advisory cross-service reference, not a foreign key.
type Transaction struct {
	OrderID     string            `json:"order_id"`
	UserEmail   string            `json:"user_email"`
	ReferenceID string            `json:"reference_id"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	Provider    string            `json:"provider"`
	CreatedAt   time.Time         `json:"created_at"`
}
