package cache

import (
	"context"
	"errors"

	"github.com/fjod/aquakit/internal/domain"
)

// CartCache holds read-through copies of carts. Every Delete advances the
// owner's version, and Set only stores a cart read under the current version,
// so a fill that raced with a write is dropped instead of cached.
type CartCache interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Version(ctx context.Context, owner domain.Owner) (int64, error)
	Set(ctx context.Context, owner domain.Owner, cart *domain.Cart, version int64) error
	Delete(ctx context.Context, owner domain.Owner) error
}

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrStaleVersion = errors.New("cart changed since it was read")
)
