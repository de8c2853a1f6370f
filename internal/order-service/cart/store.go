// Package cart holds shopping carts in memory. Mutations for one user are
// serialised by that user's lock; different users never contend.
package cart

import (
	"context"
	"sync"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
)

type userCart struct {
	mu    sync.Mutex
	lines []domain.CartLine
	// checkout admits one order attempt at a time without blocking add/remove.
	checkout chan struct{}
}

type Store struct {
	mu    sync.Mutex
	carts map[string]*userCart
}

func NewStore() *Store {
	return &Store{carts: make(map[string]*userCart)}
}

func (s *Store) entry(userID string) *userCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = &userCart{checkout: make(chan struct{}, 1)}
		s.carts[userID] = c
	}
	return c
}

func (s *Store) AddItem(_ context.Context, userID, productID string, qty int) (domain.Cart, error) {
	if qty < 1 {
		return domain.Cart{}, &domain.InvalidQuantityError{Quantity: qty}
	}
	c := s.entry(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Quantity += qty
			return c.snapshot(userID), nil
		}
	}
	c.lines = append(c.lines, domain.CartLine{ProductID: productID, Quantity: qty})
	return c.snapshot(userID), nil
}

// RemoveItem takes qty units off a line, dropping the line when it reaches
// zero. qty <= 0 drops the line outright. Removing an absent product is a no-op.
func (s *Store) RemoveItem(_ context.Context, userID, productID string, qty int) (domain.Cart, error) {
	c := s.entry(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		if qty > 0 && c.lines[i].Quantity > qty {
			c.lines[i].Quantity -= qty
		} else {
			c.lines = append(c.lines[:i:i], c.lines[i+1:]...)
		}
		break
	}
	return c.snapshot(userID), nil
}

func (s *Store) GetCart(_ context.Context, userID string) domain.Cart {
	c := s.entry(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(userID)
}

func (s *Store) Clear(_ context.Context, userID string) {
	c := s.entry(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// RemoveOrdered takes the ordered quantities off the cart after a checkout.
// Units added while the checkout ran stay in the cart.
func (s *Store) RemoveOrdered(_ context.Context, userID string, ordered []domain.CartLine) {
	c := s.entry(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	taken := make(map[string]int, len(ordered))
	for _, l := range ordered {
		taken[l.ProductID] += l.Quantity
	}
	kept := c.lines[:0]
	for _, l := range c.lines {
		l.Quantity -= taken[l.ProductID]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	c.lines = kept
}

// Borrow reserves the user's cart for one checkout and returns a snapshot of
// it. A concurrent checkout for the same user waits until release is called
// or ctx is done.
func (s *Store) Borrow(ctx context.Context, userID string) (domain.Cart, func(), error) {
	c := s.entry(userID)
	select {
	case c.checkout <- struct{}{}:
	case <-ctx.Done():
		return domain.Cart{}, nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-c.checkout })
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(userID), release, nil
}

// snapshot must be called with c.mu held.
func (c *userCart) snapshot(userID string) domain.Cart {
	return domain.Cart{UserID: userID, Lines: append([]domain.CartLine(nil), c.lines...)}
}
