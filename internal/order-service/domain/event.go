package domain

import "time"

// OrderCreatedEvent is published once per confirmed order. Consumers
// deduplicate by OrderID.
type OrderCreatedEvent struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	Items       []EventItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type EventItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	items := make([]EventItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = EventItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return OrderCreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
	}
}
