// Package httpapi is the order-service HTTP surface: the cart endpoints and
// order creation and lookup.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

type Carts interface {
	AddItem(ctx context.Context, userID, productID string, qty int) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string, qty int) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) domain.Cart
}

type Orders interface {
	CreateOrder(ctx context.Context, userID string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

type Handler struct {
	carts  Carts
	orders Orders
	idem   IdempotencyStore
	group  singleflight.Group
	logger *slog.Logger
}

// NewHandler wires the handlers. idem may be nil, in which case repeated
// order requests are not replayed.
func NewHandler(carts Carts, orders Orders, idem IdempotencyStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{carts: carts, orders: orders, idem: idem, logger: logger}
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ProductID == "" {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "productId is required")
		return
	}

	cart, err := h.carts.AddItem(r.Context(), interceptors.UserID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapCartToResponse(cart))
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart := h.carts.GetCart(r.Context(), interceptors.UserID(r.Context()))
	respond.JSON(w, http.StatusOK, mapCartToResponse(cart))
}

// RemoveItem drops the line, or only ?quantity=N units of it.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	qty := 0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respond.Error(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
			return
		}
		qty = n
	}

	cart, err := h.carts.RemoveItem(r.Context(), interceptors.UserID(r.Context()), chi.URLParam(r, "productId"), qty)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapCartToResponse(cart))
}

// CreateOrder checks out the caller's cart. With an X-Idempotency-Key,
// concurrent duplicates share one attempt and later duplicates get the
// stored answer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := interceptors.UserID(ctx)
	key := interceptors.IdempotencyKey(ctx)

	if key == "" || h.idem == nil {
		resp := h.createOrder(ctx, userID)
		writeStored(w, resp)
		return
	}

	scoped := userID + "|" + key
	if stored, ok, err := h.idem.Get(ctx, scoped); err != nil {
		h.logger.WarnContext(ctx, "idempotency store read failed", "error", err)
	} else if ok {
		w.Header().Set("Idempotent-Replayed", "true")
		writeStored(w, *stored)
		return
	}

	v, _, shared := h.group.Do(scoped, func() (any, error) {
		// A flight for this key may have finished between the read above and here.
		if stored, ok, err := h.idem.Get(ctx, scoped); err == nil && ok {
			return *stored, nil
		}
		resp := h.createOrder(ctx, userID)
		if resp.StatusCode < http.StatusInternalServerError {
			if err := h.idem.Save(context.WithoutCancel(ctx), scoped, resp); err != nil {
				h.logger.WarnContext(ctx, "idempotency store write failed", "error", err)
			}
		}
		return resp, nil
	})
	if shared {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeStored(w, v.(StoredResponse))
}

func (h *Handler) createOrder(ctx context.Context, userID string) StoredResponse {
	order, err := h.orders.CreateOrder(ctx, userID)
	if err != nil {
		status, code := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "order creation failed", "user_id", userID, "error", err)
			msg = "internal error"
		}
		return encodeStored(status, respond.ErrorResponse{Error: code, Message: msg})
	}
	return encodeStored(http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapOrderToResponse(order))
}

func encodeStored(status int, v any) StoredResponse {
	b, _ := json.Marshal(v)
	return StoredResponse{StatusCode: status, Body: b}
}

func writeStored(w http.ResponseWriter, resp StoredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
