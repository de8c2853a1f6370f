package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

const serviceName = "order-service"

// NewRouter builds the order-service router. m may be nil.
func NewRouter(h *Handler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(interceptors.Metadata)
	r.Use(interceptors.Tracing(serviceName))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", respond.Health(serviceName))
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUserID)

		r.Post("/api/cart", h.AddItem)
		r.Get("/api/cart", h.GetCart)
		r.Delete("/api/cart/items/{productId}", h.RemoveItem)

		r.Post("/api/orders", h.CreateOrder)
		r.Get("/api/orders/{id}", h.GetOrder)
	})
	return r
}

func requireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if interceptors.UserID(r.Context()) == "" {
			respond.Error(w, http.StatusBadRequest, "missing_user_id", constants.HeaderXUserID+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
