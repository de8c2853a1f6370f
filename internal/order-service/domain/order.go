package domain

import (
	"math"
	"time"
)

type Order struct {
	ID          string
	UserID      string
	Lines       []OrderLine
	TotalAmount float64
	Status      OrderStatus
	CreatedAt   time.Time
}

// OrderLine carries the unit price quoted when stock was reserved; it is
// never looked up again.
type OrderLine struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

func (l OrderLine) Subtotal() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

type OrderStatus string

const (
	// StatusPending only appears in the saga log while reservations are in flight.
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusFailed    OrderStatus = "FAILED"
)

// NewOrder builds a confirmed order and computes its total.
func NewOrder(id, userID string, lines []OrderLine, createdAt time.Time) *Order {
	return &Order{
		ID:          id,
		UserID:      userID,
		Lines:       lines,
		TotalAmount: Total(lines),
		Status:      StatusConfirmed,
		CreatedAt:   createdAt.UTC(),
	}
}

// Total sums the line subtotals, rounded to cents.
func Total(lines []OrderLine) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Subtotal()
	}
	return RoundCents(sum)
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
