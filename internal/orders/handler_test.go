package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/feastly/feastly/internal/auth"
	"github.com/feastly/feastly/internal/domain"
)

// fakeStore mirrors OrderRepository semantics in memory, including the
// conditional cancel and transition-gated status update.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func (s *fakeStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = uuid.New().String()
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *fakeStore) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *fakeStore) ListByRestaurant(_ context.Context, restaurantID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.RestaurantID == restaurantID }), nil
}

func (s *fakeStore) ListActive(_ context.Context, customerID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool {
		if o.CustomerID != customerID {
			return false
		}
		for _, status := range ActiveStatuses {
			if o.Status == status {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(order.Status, status) {
		return nil, ErrInvalidTransition
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	clone := *order
	return &clone, nil
}

func (s *fakeStore) Cancel(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrNotPending
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = time.Now().UTC()
	clone := *order
	return &clone, nil
}

func (s *fakeStore) filter(keep func(*domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for _, order := range s.orders {
		if keep(order) {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func newTestHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	handler, err := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return handler, store
}

func authedRequest(method, target, body, subject, role string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(auth.NewContext(req.Context(), auth.Claims{Subject: subject, Role: role}))
}

func TestHandleCreate(t *testing.T) {
	t.Run("creates pending order with timestamps", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := `{"restaurant_id":"r1","items":[{"menu_item_id":"m1","quantity":2}],"total_amount":1500,"delivery_address":"12 Lake Rd","payment_method":"card"}`
		rec := httptest.NewRecorder()
		handler.HandleCreate(rec, authedRequest(http.MethodPost, "/orders", body, "c1", auth.RoleCustomer))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var order domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.ID == "" {
			t.Error("expected order id to be set")
		}
		if order.Status != domain.OrderStatusPending {
			t.Errorf("expected status pending, got %s", order.Status)
		}
		if order.CustomerID != "c1" {
			t.Errorf("expected customer from token, got %s", order.CustomerID)
		}
		if order.CreatedAt.IsZero() || order.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}
	})

	t.Run("rejects empty items", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := `{"restaurant_id":"r1","items":[],"total_amount":10,"delivery_address":"a","payment_method":"cash"}`
		rec := httptest.NewRecorder()
		handler.HandleCreate(rec, authedRequest(http.MethodPost, "/orders", body, "c1", auth.RoleCustomer))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects non-positive total", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := `{"restaurant_id":"r1","items":[{"menu_item_id":"m1","quantity":1}],"total_amount":0,"delivery_address":"a","payment_method":"cash"}`
		rec := httptest.NewRecorder()
		handler.HandleCreate(rec, authedRequest(http.MethodPost, "/orders", body, "c1", auth.RoleCustomer))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects unknown payment method", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		body := `{"restaurant_id":"r1","items":[{"menu_item_id":"m1","quantity":1}],"total_amount":10,"delivery_address":"a","payment_method":"crypto"}`
		rec := httptest.NewRecorder()
		handler.HandleCreate(rec, authedRequest(http.MethodPost, "/orders", body, "c1", auth.RoleCustomer))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandleGet(t *testing.T) {
	t.Run("round-trips a created order", func(t *testing.T) {
		handler, store := newTestHandler(t)

		order := &domain.Order{
			CustomerID:      "c1",
			RestaurantID:    "r1",
			Items:           []domain.OrderItem{{MenuItemID: "m1", Quantity: 2}},
			TotalAmount:     1500,
			DeliveryAddress: "12 Lake Rd",
			PaymentMethod:   domain.PaymentMethodCard,
			Status:          domain.OrderStatusPending,
			CreatedAt:       time.Now().UTC(),
		}
		if err := store.Create(context.Background(), order); err != nil {
			t.Fatalf("seed order: %v", err)
		}

		req := authedRequest(http.MethodGet, "/orders/"+order.ID, "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", order.ID)
		rec := httptest.NewRecorder()
		handler.HandleGet(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var got domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.TotalAmount != 1500 || got.DeliveryAddress != "12 Lake Rd" || got.Status != domain.OrderStatusPending {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if len(got.Items) != 1 || got.Items[0].MenuItemID != "m1" || got.Items[0].Quantity != 2 {
			t.Errorf("items mismatch: %+v", got.Items)
		}
	})

	t.Run("returns 404 for unknown order", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		req := authedRequest(http.MethodGet, "/orders/nope", "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		handler.HandleGet(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandleList(t *testing.T) {
	seed := func(t *testing.T, store *fakeStore, customerID, restaurantID string) {
		t.Helper()
		err := store.Create(context.Background(), &domain.Order{
			CustomerID:      customerID,
			RestaurantID:    restaurantID,
			Items:           []domain.OrderItem{{MenuItemID: "m1", Quantity: 1}},
			TotalAmount:     10,
			DeliveryAddress: "a",
			PaymentMethod:   domain.PaymentMethodCash,
			Status:          domain.OrderStatusPending,
			CreatedAt:       time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	t.Run("customers see their own orders", func(t *testing.T) {
		handler, store := newTestHandler(t)
		seed(t, store, "c1", "r1")
		seed(t, store, "c2", "r1")

		rec := httptest.NewRecorder()
		handler.HandleList(rec, authedRequest(http.MethodGet, "/orders", "", "c1", auth.RoleCustomer))

		var list []domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(list) != 1 || list[0].CustomerID != "c1" {
			t.Errorf("expected only c1 orders, got %+v", list)
		}
	})

	t.Run("restaurant admins see their restaurant's orders", func(t *testing.T) {
		handler, store := newTestHandler(t)
		seed(t, store, "c1", "r1")
		seed(t, store, "c2", "r2")

		rec := httptest.NewRecorder()
		handler.HandleList(rec, authedRequest(http.MethodGet, "/orders", "", "r2", auth.RoleRestaurantAdmin))

		var list []domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(list) != 1 || list[0].RestaurantID != "r2" {
			t.Errorf("expected only r2 orders, got %+v", list)
		}
	})
}

func TestHandleListActive(t *testing.T) {
	handler, store := newTestHandler(t)

	active := &domain.Order{
		CustomerID: "c1", RestaurantID: "r1",
		Items:           []domain.OrderItem{{MenuItemID: "m1", Quantity: 1}},
		TotalAmount:     10, DeliveryAddress: "a",
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.OrderStatusPreparing,
		CreatedAt:     time.Now().UTC(),
	}
	cancelled := &domain.Order{
		CustomerID: "c1", RestaurantID: "r1",
		Items:           []domain.OrderItem{{MenuItemID: "m2", Quantity: 1}},
		TotalAmount:     10, DeliveryAddress: "a",
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.OrderStatusCancelled,
		CreatedAt:     time.Now().UTC(),
	}
	for _, o := range []*domain.Order{active, cancelled} {
		if err := store.Create(context.Background(), o); err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	handler.HandleListActive(rec, authedRequest(http.MethodGet, "/orders/active", "", "c1", auth.RoleCustomer))

	var list []domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, o := range list {
		if o.Status == domain.OrderStatusCancelled {
			t.Error("active list must never include cancelled orders")
		}
	}
	if len(list) != 1 {
		t.Errorf("expected 1 active order, got %d", len(list))
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	seed := func(t *testing.T, store *fakeStore, status domain.OrderStatus) string {
		t.Helper()
		order := &domain.Order{
			CustomerID: "c1", RestaurantID: "r1",
			Items:           []domain.OrderItem{{MenuItemID: "m1", Quantity: 1}},
			TotalAmount:     10, DeliveryAddress: "a",
			PaymentMethod: domain.PaymentMethodCash,
			Status:        status,
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.Create(context.Background(), order); err != nil {
			t.Fatalf("seed order: %v", err)
		}
		return order.ID
	}

	t.Run("legal transition succeeds", func(t *testing.T) {
		handler, store := newTestHandler(t)
		id := seed(t, store, domain.OrderStatusPending)

		req := authedRequest(http.MethodPut, "/orders/"+id+"/status", `{"status":"accepted"}`, "r1", auth.RoleRestaurantAdmin)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Status != domain.OrderStatusAccepted {
			t.Errorf("expected accepted, got %s", got.Status)
		}
	})

	t.Run("illegal transition returns 400", func(t *testing.T) {
		handler, store := newTestHandler(t)
		id := seed(t, store, domain.OrderStatusPending)

		req := authedRequest(http.MethodPut, "/orders/"+id+"/status", `{"status":"ready_for_delivery"}`, "r1", auth.RoleRestaurantAdmin)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("unknown status value returns 400", func(t *testing.T) {
		handler, store := newTestHandler(t)
		id := seed(t, store, domain.OrderStatusPending)

		req := authedRequest(http.MethodPut, "/orders/"+id+"/status", `{"status":"delivered"}`, "r1", auth.RoleRestaurantAdmin)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		req := authedRequest(http.MethodPut, "/orders/nope/status", `{"status":"accepted"}`, "r1", auth.RoleRestaurantAdmin)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandleCancel(t *testing.T) {
	seed := func(t *testing.T, store *fakeStore) string {
		t.Helper()
		order := &domain.Order{
			CustomerID: "c1", RestaurantID: "r1",
			Items:           []domain.OrderItem{{MenuItemID: "m1", Quantity: 1}},
			TotalAmount:     10, DeliveryAddress: "a",
			PaymentMethod: domain.PaymentMethodCash,
			Status:        domain.OrderStatusPending,
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.Create(context.Background(), order); err != nil {
			t.Fatalf("seed order: %v", err)
		}
		return order.ID
	}

	t.Run("cancelling twice: first succeeds, second returns 400", func(t *testing.T) {
		handler, store := newTestHandler(t)
		id := seed(t, store)

		req := authedRequest(http.MethodPatch, "/orders/"+id+"/cancel", "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		handler.HandleCancel(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Status != domain.OrderStatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}

		req = authedRequest(http.MethodPatch, "/orders/"+id+"/cancel", "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", id)
		rec = httptest.NewRecorder()
		handler.HandleCancel(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400 on second cancel, got %d", rec.Code)
		}
	})

	t.Run("cancel after accept returns 400 and leaves status unchanged", func(t *testing.T) {
		handler, store := newTestHandler(t)
		id := seed(t, store)

		if _, err := store.UpdateStatus(context.Background(), id, domain.OrderStatusAccepted); err != nil {
			t.Fatalf("advance order: %v", err)
		}

		req := authedRequest(http.MethodPatch, "/orders/"+id+"/cancel", "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		handler.HandleCancel(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}

		order, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if order.Status != domain.OrderStatusAccepted {
			t.Errorf("expected status unchanged (accepted), got %s", order.Status)
		}
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		handler, _ := newTestHandler(t)

		req := authedRequest(http.MethodPatch, "/orders/nope/cancel", "", "c1", auth.RoleCustomer)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		handler.HandleCancel(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}
