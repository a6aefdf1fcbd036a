package domain

import "time"

// PaymentRecordedEvent is published by the payments service after a
// transaction has been durably committed to the ledger. Consumers use
// it to advance the order; the ledger row, not this event, is the
// source of truth for whether an order was paid.
type PaymentRecordedEvent struct {
	OrderID     string            `json:"order_id"`
	ReferenceID string            `json:"reference_id"`
	Status      TransactionStatus `json:"status"`
	Amount      float64           `json:"amount"`
	Timestamp   time.Time         `json:"timestamp"`
}
