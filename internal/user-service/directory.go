// Package userservice is the development user directory: it only knows
// whether a user id exists.
package userservice

import (
	"context"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
)

const keyOperation = "user"

type Directory struct {
	cache cache.Cache
}

func NewDirectory(c cache.Cache) *Directory {
	return &Directory{cache: c}
}

// Seed registers ids that do not exist yet; existing entries are kept.
func (d *Directory) Seed(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := d.cache.SetNX(ctx, d.cache.GenerateKey(keyOperation, id), time.Now().UTC().Format(time.RFC3339), 0); err != nil {
			return fmt.Errorf("users: seed %q: %w", id, err)
		}
	}
	return nil
}

func (d *Directory) Exists(ctx context.Context, id string) (bool, error) {
	v, err := d.cache.Get(ctx, d.cache.GenerateKey(keyOperation, id))
	if err != nil {
		return false, fmt.Errorf("users: lookup %q: %w", id, err)
	}
	return v != "", nil
}
