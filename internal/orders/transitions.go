package orders

import "github.com/feastly/feastly/internal/domain"

// predecessors maps each reachable status to the statuses an order must
// currently hold for the move to be legal. Expressing the graph this
// way lets the store enforce a transition with a single conditional
// UPDATE instead of a read-then-write.
var predecessors = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusAccepted:         {domain.OrderStatusPending},
	domain.OrderStatusPreparing:        {domain.OrderStatusAccepted},
	domain.OrderStatusReadyForDelivery: {domain.OrderStatusPreparing},
	domain.OrderStatusCancelled:        {domain.OrderStatusPending},
}

// ActiveStatuses is the canonical allowlist used by the active-orders
// listing. Cancelled orders are excluded by construction.
var ActiveStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusAccepted,
	domain.OrderStatusPreparing,
	domain.OrderStatusReadyForDelivery,
}

// Predecessors returns the statuses from which target may be reached,
// or nil if target is not a reachable status (pending is initial-only).
func Predecessors(target domain.OrderStatus) []domain.OrderStatus {
	preds, ok := predecessors[target]
	if !ok {
		return nil
	}
	out := make([]domain.OrderStatus, len(preds))
	copy(out, preds)
	return out
}

// CanTransition reports whether the graph allows moving from one status
// to another.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// KnownStatus reports whether s is part of the order status vocabulary.
func KnownStatus(s domain.OrderStatus) bool {
	switch s {
	case domain.OrderStatusPending,
		domain.OrderStatusAccepted,
		domain.OrderStatusPreparing,
		domain.OrderStatusReadyForDelivery,
		domain.OrderStatusCancelled:
		return true
	}
	return false
}
