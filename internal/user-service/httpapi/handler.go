// Package httpapi serves the user directory.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

const serviceName = "user-service"

type Directory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type UserResponse struct {
	ID string `json:"id"`
}

type Handler struct {
	dir    Directory
	logger *slog.Logger
}

func NewHandler(dir Directory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dir: dir, logger: logger}
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.dir.Exists(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "user lookup failed", "user_id", id, "error", err)
		respond.Error(w, http.StatusServiceUnavailable, "directory_unavailable", "user directory unavailable")
		return
	}
	if !ok {
		respond.Error(w, http.StatusNotFound, "user_not_found", "user "+id+" not found")
		return
	}
	respond.JSON(w, http.StatusOK, UserResponse{ID: id})
}

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
	r.Get("/api/users/{id}", h.GetUser)
	return r
}
