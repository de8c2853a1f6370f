// Package collaborators talks to the user and product services through the
// resilient client and turns their HTTP answers into domain errors.
package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

const (
	UserService      = "user-service"
	InventoryService = "inventory-service"
)

// Caller is satisfied by *resilience.Client.
type Caller interface {
	Call(ctx context.Context, service string, req *resilience.Request) (*resilience.Response, error)
}

// Users implements the order orchestrator's user directory.
type Users struct {
	caller  Caller
	service string
}

func NewUsers(caller Caller) *Users {
	return &Users{caller: caller, service: UserService}
}

func (u *Users) Lookup(ctx context.Context, userID string) error {
	resp, err := u.caller.Call(ctx, u.service, &resilience.Request{
		Method: http.MethodGet,
		Path:   "/api/users/" + url.PathEscape(userID),
	})
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &domain.UserNotFoundError{UserID: userID}
	case isSuccess(resp.StatusCode):
		return nil
	default:
		return unexpected(u.service, resp)
	}
}

// Products implements the stock ledger against the product service.
type Products struct {
	caller  Caller
	service string
}

func NewProducts(caller Caller) *Products {
	return &Products{caller: caller, service: InventoryService}
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

// Reserve decrements stock for productID under key and returns the unit
// price. Repeating it with the same key never decrements twice.
func (p *Products) Reserve(ctx context.Context, productID string, qty int, key string) (float64, error) {
	body, err := json.Marshal(ReserveRequest{Quantity: qty})
	if err != nil {
		return 0, fmt.Errorf("collaborators: encode reservation: %w", err)
	}
	resp, err := p.caller.Call(ctx, p.service, &resilience.Request{
		Method:         http.MethodPost,
		Path:           "/api/products/" + url.PathEscape(productID) + "/reservations",
		Body:           body,
		IdempotencyKey: key,
	})
	if err != nil {
		return 0, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, &domain.ProductNotFoundError{ProductID: productID}
	case resp.StatusCode == http.StatusConflict:
		return 0, &domain.InsufficientStockError{ProductID: productID}
	case isSuccess(resp.StatusCode):
		var out ReservationResponse
		if err := resp.DecodeJSON(&out); err != nil {
			return 0, err
		}
		return out.UnitPrice, nil
	default:
		return 0, unexpected(p.service, resp)
	}
}

// Release undoes the reservation made under key. An unknown key is already
// released as far as the caller is concerned.
func (p *Products) Release(ctx context.Context, key string) error {
	resp, err := p.caller.Call(ctx, p.service, &resilience.Request{
		Method:         http.MethodDelete,
		Path:           "/api/reservations/" + url.PathEscape(key),
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	if isSuccess(resp.StatusCode) || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return unexpected(p.service, resp)
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func unexpected(service string, resp *resilience.Response) error {
	return fmt.Errorf("collaborators: %s answered %d: %s", service, resp.StatusCode, truncate(resp.Body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
