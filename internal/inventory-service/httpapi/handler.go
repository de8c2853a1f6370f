// Package httpapi serves the inventory ledger over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

type Ledger interface {
	Product(ctx context.Context, productID string) (domain.StockItem, error)
	Reserve(ctx context.Context, key, productID string, qty int) (domain.Reservation, bool, error)
	Release(ctx context.Context, key string) (domain.Reservation, error)
}

type ProductResponse struct {
	ProductID string  `json:"productId"`
	Available int     `json:"available"`
	UnitPrice float64 `json:"unitPrice"`
}

type ReserveRequest struct {
	Quantity int `json:"quantity"`
}

type ReservationResponse struct {
	Key       string  `json:"key"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

func NewHandler(ledger Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ledger: ledger, logger: logger}
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	item, err := h.ledger.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, ProductResponse{ProductID: item.ProductID, Available: item.Available, UnitPrice: item.UnitPrice})
}

// Reserve answers 201 for a new reservation and 200 when the key replays one.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	key := interceptors.IdempotencyKey(r.Context())
	if key == "" {
		respond.Error(w, http.StatusBadRequest, "missing_idempotency_key", "X-Idempotency-Key header is required")
		return
	}
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	res, replayed, err := h.ledger.Reserve(r.Context(), key, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	respond.JSON(w, status, ReservationResponse{Key: res.Key, ProductID: res.ProductID, Quantity: res.Quantity, UnitPrice: res.UnitPrice})
}

// Release takes the key from the path; it arrives percent-encoded because
// order keys contain slashes.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		respond.Error(w, http.StatusBadRequest, "invalid_key", "reservation key is not a valid path segment")
		return
	}
	if _, err := h.ledger.Release(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		respond.Error(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		respond.Error(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		respond.Error(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrReservationReleased):
		respond.Error(w, http.StatusConflict, "reservation_released", err.Error())
	case errors.Is(err, domain.ErrKeyReused):
		respond.Error(w, http.StatusUnprocessableEntity, "idempotency_key_reused", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		respond.Error(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "inventory request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
