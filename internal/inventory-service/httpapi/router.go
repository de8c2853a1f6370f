package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

const serviceName = "inventory-service"

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

	r.Get("/api/products/{id}", h.GetProduct)
	r.Post("/api/products/{id}/reservations", h.Reserve)
	r.Delete("/api/reservations/{key}", h.Release)
	return r
}
