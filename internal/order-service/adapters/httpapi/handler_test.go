package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/cart"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

type fakeOrders struct {
	createFn func(ctx context.Context, userID string) (*domain.Order, error)
	getFn    func(ctx context.Context, id string) (*domain.Order, error)
	calls    atomic.Int32
}

func (f *fakeOrders) CreateOrder(ctx context.Context, userID string) (*domain.Order, error) {
	f.calls.Add(1)
	return f.createFn(ctx, userID)
}

func (f *fakeOrders) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return f.getFn(ctx, id)
}

var sampleOrder = domain.NewOrder("o1", "u1",
	[]domain.OrderLine{{ProductID: "p1", Quantity: 2, UnitPrice: 9.99}},
	time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

func newServer(orders *fakeOrders) (http.Handler, *cart.Store) {
	carts := cart.NewStore()
	idem := NewCacheIdempotencyStore(cache.NewMemoryCache("order-service"), time.Hour)
	return NewRouter(NewHandler(carts, orders, idem, nil), metrics.New()), carts
}

func do(t *testing.T, h http.Handler, method, path, user, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(constants.HeaderXUserID, user)
	}
	if key != "" {
		req.Header.Set(constants.HeaderXIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequiresUserID(t *testing.T) {
	h, _ := newServer(&fakeOrders{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/cart"},
		{http.MethodPost, "/api/cart"},
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/orders/o1"},
	} {
		rec := do(t, h, tc.method, tc.path, "", "", "{}")
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), "missing_user_id")
	}
}

func TestCartEndpoints(t *testing.T) {
	h, _ := newServer(&fakeOrders{})

	rec := do(t, h, http.MethodPost, "/api/cart", "u1", "", `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","items":[{"productId":"p1","quantity":2}]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/cart", "u1", "", `{"productId":"p2","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/cart/items/p2?quantity=1", "u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","items":[{"productId":"p1","quantity":2},{"productId":"p2","quantity":2}]}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/cart/items/p1", "u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/cart", "u1", "", "")
	assert.JSONEq(t, `{"userId":"u1","items":[{"productId":"p2","quantity":2}]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/cart", "u2", "", "")
	assert.JSONEq(t, `{"userId":"u2","items":[]}`, rec.Body.String())
}

func TestCartValidation(t *testing.T) {
	h, _ := newServer(&fakeOrders{})

	tests := []struct {
		name, method, path, body, code string
	}{
		{"bad json", http.MethodPost, "/api/cart", `{`, "invalid_json"},
		{"missing product", http.MethodPost, "/api/cart", `{"quantity":1}`, "invalid_request"},
		{"zero quantity", http.MethodPost, "/api/cart", `{"productId":"p1","quantity":0}`, "invalid_quantity"},
		{"bad remove quantity", http.MethodDelete, "/api/cart/items/p1?quantity=x", ``, "invalid_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, "u1", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty cart", &domain.EmptyCartError{UserID: "u1"}, http.StatusUnprocessableEntity, "empty_cart"},
		{"user not found", &domain.UserNotFoundError{UserID: "u1"}, http.StatusNotFound, "user_not_found"},
		{"product not found", &domain.ProductNotFoundError{ProductID: "p9"}, http.StatusNotFound, "product_not_found"},
		{"insufficient stock", &domain.InsufficientStockError{ProductID: "p1"}, http.StatusConflict, "insufficient_stock"},
		{"unavailable", &resilience.DownstreamUnavailableError{Service: "user-service", Attempts: 3, Err: &resilience.StatusError{StatusCode: 503}}, http.StatusServiceUnavailable, "downstream_unavailable"},
		{"circuit open", &resilience.CircuitOpenError{Service: "inventory-service", State: resilience.StateOpen}, http.StatusServiceUnavailable, "downstream_unavailable"},
		{"no endpoint", &resilience.NoEndpointError{Service: "user-service"}, http.StatusServiceUnavailable, "downstream_unavailable"},
		{"unexpected", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newServer(&fakeOrders{createFn: func(context.Context, string) (*domain.Order, error) {
				return nil, tt.err
			}})
			rec := do(t, h, http.MethodPost, "/api/orders", "u1", "", "")
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestCreateOrder_Created(t *testing.T) {
	var gotUser string
	h, _ := newServer(&fakeOrders{createFn: func(_ context.Context, userID string) (*domain.Order, error) {
		gotUser = userID
		return sampleOrder, nil
	}})

	rec := do(t, h, http.MethodPost, "/api/orders", "u1", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", gotUser)
	assert.JSONEq(t, `{
		"id":"o1","userId":"u1","status":"CONFIRMED",
		"items":[{"productId":"p1","quantity":2,"unitPrice":9.99}],
		"totalAmount":19.98,"createdAt":"2026-03-01T12:00:00Z"
	}`, rec.Body.String())
}

func TestCreateOrder_ReplaysByIdempotencyKey(t *testing.T) {
	orders := &fakeOrders{createFn: func(context.Context, string) (*domain.Order, error) {
		return sampleOrder, nil
	}}
	h, _ := newServer(orders)

	first := do(t, h, http.MethodPost, "/api/orders", "u1", "k1", "")
	second := do(t, h, http.MethodPost, "/api/orders", "u1", "k1", "")

	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.EqualValues(t, 1, orders.calls.Load())

	// The key is scoped to the caller.
	do(t, h, http.MethodPost, "/api/orders", "u2", "k1", "")
	assert.EqualValues(t, 2, orders.calls.Load())
}

func TestCreateOrder_DoesNotStoreUnavailable(t *testing.T) {
	orders := &fakeOrders{createFn: func(context.Context, string) (*domain.Order, error) {
		return nil, &resilience.NoEndpointError{Service: "user-service"}
	}}
	h, _ := newServer(orders)

	do(t, h, http.MethodPost, "/api/orders", "u1", "k1", "")
	rec := do(t, h, http.MethodPost, "/api/orders", "u1", "k1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.EqualValues(t, 2, orders.calls.Load())
}

func TestCreateOrder_CollapsesConcurrentDuplicates(t *testing.T) {
	release := make(chan struct{})
	orders := &fakeOrders{createFn: func(context.Context, string) (*domain.Order, error) {
		<-release
		return sampleOrder, nil
	}}
	h, _ := newServer(orders)

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(t, h, http.MethodPost, "/api/orders", "u1", "dup", "").Code
		}()
	}
	require.Eventually(t, func() bool { return orders.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, orders.calls.Load())
	for _, c := range codes {
		assert.Equal(t, http.StatusCreated, c)
	}
}

func TestGetOrder(t *testing.T) {
	h, _ := newServer(&fakeOrders{getFn: func(_ context.Context, id string) (*domain.Order, error) {
		if id == "o1" {
			return sampleOrder, nil
		}
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}})

	rec := do(t, h, http.MethodGet, "/api/orders/o1", "u1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"o1"`)

	rec = do(t, h, http.MethodGet, "/api/orders/o2", "u1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_not_found")
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newServer(&fakeOrders{})

	rec := do(t, h, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"order-service"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
