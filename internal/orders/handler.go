package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/feastly/feastly/internal/auth"
	"github.com/feastly/feastly/internal/domain"
)

// Store is the order persistence surface the handler depends on,
// implemented by OrderRepository.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error)
	ListActive(ctx context.Context, customerID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, id string) (*domain.Order, error)
}

type Handler struct {
	store         Store
	logger        *slog.Logger
	ordersCreated metric.Int64Counter
}

func NewHandler(store Store, logger *slog.Logger) (*Handler, error) {
	ordersCreated, err := otel.Meter("orders").Int64Counter("orders_created_total",
		metric.WithDescription("Orders created, by payment method"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:         store,
		logger:        logger,
		ordersCreated: ordersCreated,
	}, nil
}

type createOrderRequest struct {
	RestaurantID    string               `json:"restaurant_id"`
	Items           []domain.OrderItem   `json:"items"`
	TotalAmount     float64              `json:"total_amount"`
	DeliveryAddress string               `json:"delivery_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
}

func (req *createOrderRequest) validate() string {
	if req.RestaurantID == "" {
		return "restaurant_id is required"
	}
	if len(req.Items) == 0 {
		return "items must not be empty"
	}
	for _, item := range req.Items {
		if item.MenuItemID == "" {
			return "items must reference a menu item"
		}
		if item.Quantity < 1 {
			return "item quantity must be at least 1"
		}
	}
	if req.TotalAmount <= 0 {
		return "total_amount must be positive"
	}
	if req.DeliveryAddress == "" {
		return "delivery_address is required"
	}
	if req.PaymentMethod != domain.PaymentMethodCash && req.PaymentMethod != domain.PaymentMethodCard {
		return "payment_method must be cash or card"
	}
	return ""
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	order := &domain.Order{
		CustomerID:      claims.Subject,
		RestaurantID:    req.RestaurantID,
		Items:           req.Items,
		TotalAmount:     req.TotalAmount,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          domain.OrderStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	order.UpdatedAt = order.CreatedAt

	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.ordersCreated.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("payment_method", string(order.PaymentMethod))))

	h.logger.Info("order created", "order_id", order.ID, "customer_id", order.CustomerID, "restaurant_id", order.RestaurantID)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var (
		list []domain.Order
		err  error
	)

	// Restaurant admins see their restaurant's orders; the subject id
	// is the restaurant id for that role.
	if claims.Role == auth.RoleRestaurantAdmin {
		list, err = h.store.ListByRestaurant(r.Context(), claims.Subject)
	} else {
		list, err = h.store.ListByCustomer(r.Context(), claims.Subject)
	}
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("orders listed", "count", len(list), "role", claims.Role)
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	list, err := h.store.ListActive(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("failed to list active orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("active orders listed", "count", len(list))
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !KnownStatus(req.Status) {
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	order, err := h.store.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrInvalidTransition):
			h.writeError(w, http.StatusBadRequest, "illegal status transition")
		default:
			h.logger.Error("failed to update order status", "error", err, "id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.Cancel(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrNotPending):
			h.writeError(w, http.StatusBadRequest, "only pending orders can be cancelled")
		default:
			h.logger.Error("failed to cancel order", "error", err, "id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("order cancelled", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
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
