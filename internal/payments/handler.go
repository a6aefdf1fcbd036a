package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/feastly/feastly/internal/domain"
)

const checkoutCompletedEvent = "checkout.session.completed"

// maxWebhookBody bounds how much of a callback body is read.
const maxWebhookBody = 1 << 20

// Ledger is the transaction persistence surface the handler depends
// on, implemented by TransactionLedger.
type Ledger interface {
	Record(ctx context.Context, txn *domain.Transaction) (bool, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	Resolve(ctx context.Context, referenceID string, status domain.TransactionStatus) (bool, error)
}

// Publisher emits payment.recorded events, implemented by
// messaging.Producer. A nil Publisher disables propagation; webhook
// acknowledgement never depends on it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	cfg           Config
	checkout      *CheckoutClient
	ledger        Ledger
	publisher     Publisher
	logger        *slog.Logger
	webhookEvents metric.Int64Counter
}

func NewHandler(cfg Config, checkout *CheckoutClient, ledger Ledger, publisher Publisher, logger *slog.Logger) (*Handler, error) {
	webhookEvents, err := otel.Meter("payments").Int64Counter("webhook_events_total",
		metric.WithDescription("Webhook deliveries, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		cfg:           cfg,
		checkout:      checkout,
		ledger:        ledger,
		publisher:     publisher,
		logger:        logger,
		webhookEvents: webhookEvents,
	}, nil
}

type initiateRequest struct {
	OrderID  string        `json:"order_id"`
	Email    string        `json:"email"`
	Amount   float64       `json:"amount"`
	Currency string        `json:"currency"`
	Items    []SessionItem `json:"items"`
}

func (req *initiateRequest) validate() string {
	if req.OrderID == "" {
		return "order_id is required"
	}
	if req.Email == "" {
		return "email is required"
	}
	if req.Amount <= 0 {
		return "amount must be positive"
	}
	if len(req.Items) == 0 {
		return "items must not be empty"
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return "item quantity must be at least 1"
		}
		if item.Price <= 0 {
			return "item price must be positive"
		}
	}
	return ""
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	redirectURL, err := h.checkout.CreateSession(r.Context(), req.OrderID, req.Email, req.Currency, req.Items)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	h.logger.Info("checkout session created", "order_id", req.OrderID)
	h.writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
}

// providerEvent mirrors the provider's signed callback payload. Amounts
// arrive in minor units; metadata is the verbatim echo of what
// CreateSession embedded.
type providerEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			AmountTotal   int64             `json:"amount_total"`
			Currency      string            `json:"currency"`
			PaymentStatus string            `json:"payment_status"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook reconciles a provider callback. The body is read raw:
// the signature covers the exact received bytes. Duplicate deliveries
// are acknowledged as successes; only a persistence failure after a
// verified signature returns 5xx, which asks the provider to redeliver.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if err := VerifySignature([]byte(h.cfg.WebhookSecret), sig, body, time.Now()); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		h.countWebhook(r.Context(), "signature_rejected")
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event providerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("webhook body unparseable after valid signature", "error", err)
		h.countWebhook(r.Context(), "malformed")
		h.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	// Unrecognized event types are acknowledged immediately so the
	// provider's at-least-once retries stop; only checkout completion
	// drives state.
	if event.Type != checkoutCompletedEvent {
		h.logger.Info("ignoring webhook event", "type", event.Type)
		h.countWebhook(r.Context(), "ignored")
		h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	session := event.Data.Object
	if session.ID == "" {
		h.countWebhook(r.Context(), "malformed")
		h.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	status := domain.TransactionStatusFailed
	if session.PaymentStatus == "paid" {
		status = domain.TransactionStatusSuccess
	}

	currency := session.Currency
	if currency == "" {
		currency = h.cfg.Currency
	}

	txn := &domain.Transaction{
		OrderID:     session.Metadata["order_id"],
		UserEmail:   session.Metadata["email"],
		ReferenceID: session.ID,
		Amount:      float64(session.AmountTotal) / 100,
		Currency:    currency,
		Status:      status,
		Provider:    h.cfg.ProviderName,
		CreatedAt:   time.Now().UTC(),
	}

	inserted, err := h.ledger.Record(r.Context(), txn)
	if err != nil {
		h.logger.Error("failed to record transaction", "error", err, "reference_id", txn.ReferenceID)
		h.countWebhook(r.Context(), "persistence_error")
		h.writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}

	if !inserted {
		if err := h.resolvePending(r.Context(), txn.ReferenceID, status); err != nil {
			h.logger.Error("failed to resolve pending transaction", "error", err, "reference_id", txn.ReferenceID)
			h.countWebhook(r.Context(), "persistence_error")
			h.writeError(w, http.StatusInternalServerError, "persistence failure")
			return
		}
		h.logger.Info("duplicate webhook delivery", "reference_id", txn.ReferenceID)
		h.countWebhook(r.Context(), "duplicate")
		h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	h.logger.Info("transaction recorded",
		"reference_id", txn.ReferenceID, "order_id", txn.OrderID, "status", txn.Status, "amount", txn.Amount)
	h.countWebhook(r.Context(), "recorded")

	// Best-effort propagation; the ledger row is already durable, so a
	// publish failure is an operational follow-up, not a webhook error.
	if h.publisher != nil {
		recorded := domain.PaymentRecordedEvent{
			OrderID:     txn.OrderID,
			ReferenceID: txn.ReferenceID,
			Status:      txn.Status,
			Amount:      txn.Amount,
			Timestamp:   txn.CreatedAt,
		}
		if err := h.publisher.Publish(r.Context(), txn.OrderID, recorded); err != nil {
			h.logger.Error("failed to publish payment recorded event", "error", err, "order_id", txn.OrderID)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// resolvePending upgrades an earlier PENDING row for the same reference
// to the terminal status carried by this delivery. Terminal rows are
// never overwritten. The webhook path itself only ever records terminal
// statuses; a PENDING row can only originate outside it (an operator
// backfill, or a reservation written at initiate time).
func (h *Handler) resolvePending(ctx context.Context, referenceID string, status domain.TransactionStatus) error {
	if status == domain.TransactionStatusPending {
		return nil
	}

	existing, err := h.ledger.GetByReference(ctx, referenceID)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status != domain.TransactionStatusPending {
		return nil
	}

	resolved, err := h.ledger.Resolve(ctx, referenceID, status)
	if err != nil {
		return err
	}
	if resolved {
		h.logger.Info("pending transaction resolved", "reference_id", referenceID, "status", status)
	}
	return nil
}

func (h *Handler) countWebhook(ctx context.Context, outcome string) {
	h.webhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
