package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrKeyReused means the idempotency key already names a different reservation.
	ErrKeyReused = errors.New("idempotency key already used for another reservation")
	// ErrReservationReleased refuses a reserve that arrives after its own release.
	ErrReservationReleased = errors.New("reservation already released")
)

type StockItem struct {
	ProductID string
	Available int
	UnitPrice float64
}

// Reservation is the stock held under one idempotency key.
type Reservation struct {
	Key       string
	ProductID string
	Quantity  int
	UnitPrice float64
	Released  bool
}

// ParseSeed reads "productId=stock@price,..." into stock items.
func ParseSeed(spec string) ([]StockItem, error) {
	var items []StockItem
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rest, ok := strings.Cut(entry, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("inventory seed %q: want productId=stock@price", entry)
		}
		stockStr, priceStr, ok := strings.Cut(rest, "@")
		if !ok {
			return nil, fmt.Errorf("inventory seed %q: missing @price", entry)
		}
		stock, err := strconv.Atoi(stockStr)
		if err != nil || stock < 0 {
			return nil, fmt.Errorf("inventory seed %q: bad stock %q", entry, stockStr)
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("inventory seed %q: bad price %q", entry, priceStr)
		}
		items = append(items, StockItem{ProductID: strings.TrimSpace(id), Available: stock, UnitPrice: price})
	}
	return items, nil
}
