package httpapi

import (
	"errors"
	"net/http"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

// statusFor maps the order-service error taxonomy onto an HTTP status and a
// stable error code.
func statusFor(err error) (int, string) {
	var (
		invalidQty   *domain.InvalidQuantityError
		emptyCart    *domain.EmptyCartError
		userNotFound *domain.UserNotFoundError
		prodNotFound *domain.ProductNotFoundError
		stock        *domain.InsufficientStockError
		orderMissing *domain.OrderNotFoundError
	)
	switch {
	case errors.As(err, &invalidQty):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.As(err, &emptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.As(err, &userNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.As(err, &prodNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.As(err, &stock):
		return http.StatusConflict, "insufficient_stock"
	case errors.As(err, &orderMissing):
		return http.StatusNotFound, "order_not_found"
	case resilience.IsUnavailable(err):
		return http.StatusServiceUnavailable, "downstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "code", code, "error", err)
	}
	respond.Error(w, status, code, msg)
}
