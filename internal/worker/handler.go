package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/feastly/feastly/internal/domain"
)

// TokenSource mints a fresh service bearer token for calls to the
// orders service.
type TokenSource func() (string, error)

// ReconcileHandler consumes payment.recorded events and advances the
// corresponding order over the orders service's HTTP API. The ledger
// write already happened on the payments side; this handler only
// propagates, so every path here is safe to retry.
type ReconcileHandler struct {
	ordersServiceURL string
	httpClient       *http.Client
	tokens           TokenSource
	logger           *slog.Logger
	newBackOff       func() backoff.BackOff
}

func NewReconcileHandler(ordersServiceURL string, client *http.Client, tokens TokenSource, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		ordersServiceURL: ordersServiceURL,
		httpClient:       client,
		tokens:           tokens,
		logger:           logger,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		},
	}
}

func (h *ReconcileHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentRecordedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// A poison message would block the partition forever; log it
		// and move on.
		h.logger.Error("dropping unparseable payment event", "error", err)
		return nil
	}

	h.logger.Info("processing payment recorded event",
		"order_id", event.OrderID, "reference_id", event.ReferenceID, "status", event.Status)

	if event.Status != domain.TransactionStatusSuccess {
		h.logger.Info("payment not successful, order left untouched", "order_id", event.OrderID, "status", event.Status)
		return nil
	}

	if event.OrderID == "" {
		h.logger.Error("payment event carries no order id", "reference_id", event.ReferenceID)
		return nil
	}

	operation := func() error {
		return h.advanceOrder(ctx, event.OrderID, domain.OrderStatusAccepted)
	}

	policy := backoff.WithContext(h.newBackOff(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		// Returning the error keeps the offset uncommitted so the
		// consumer group redelivers the event.
		return fmt.Errorf("advance order %s: %w", event.OrderID, err)
	}

	h.logger.Info("order advanced after payment", "order_id", event.OrderID)
	return nil
}

func (h *ReconcileHandler) advanceOrder(ctx context.Context, orderID string, status domain.OrderStatus) error {
	token, err := h.tokens()
	if err != nil {
		return backoff.Permanent(fmt.Errorf("mint service token: %w", err))
	}

	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return backoff.Permanent(err)
	}

	url := fmt.Sprintf("%s/orders/%s/status", h.ordersServiceURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call orders service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		// The order already left pending (a duplicate event, or a
		// manual transition raced us). The payment is recorded either
		// way; nothing left to do.
		h.logger.Info("order already past pending", "order_id", orderID)
		return nil
	case http.StatusNotFound:
		// The order id is an advisory cross-service reference; an
		// unknown order is an operational follow-up, not a reason to
		// block the partition.
		h.logger.Error("paid order not found in orders service", "order_id", orderID)
		return nil
	default:
		return fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}
}
