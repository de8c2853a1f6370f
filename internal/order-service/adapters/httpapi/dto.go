package httpapi

import (
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
)

type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	UserID string             `json:"userId"`
	Items  []CartItemResponse `json:"items"`
}

type CartItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	Status      string              `json:"status"`
	Items       []OrderItemResponse `json:"items"`
	TotalAmount float64             `json:"totalAmount"`
	CreatedAt   string              `json:"createdAt"`
}

type OrderItemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

func mapCartToResponse(c domain.Cart) CartResponse {
	items := make([]CartItemResponse, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = CartItemResponse{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return CartResponse{UserID: c.UserID, Items: items}
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = OrderItemResponse{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return OrderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Items:       items,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339Nano),
	}
}
