package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/aquakit/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("line not found in cart")
)

// CartRepository is the persistence boundary for carts keyed by owner.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	// UpsertLine adds line.Quantity to the existing line for the same catalog
	// item, or appends line when the cart has none. The cart is created when
	// missing.
	UpsertLine(ctx context.Context, owner domain.Owner, line domain.CartLineItem) error
	UpdateLineQuantity(ctx context.Context, owner domain.Owner, lineID string, quantity int) error
	RemoveLine(ctx context.Context, owner domain.Owner, lineID string) error
	DeleteCart(ctx context.Context, owner domain.Owner) error
	// DeleteCartUpdatedBefore deletes the cart only if it was last written at
	// or before cutoff. It returns ErrCartNotFound when nothing was deleted.
	DeleteCartUpdatedBefore(ctx context.Context, owner domain.Owner, cutoff time.Time) error
	// TransferCart moves every line of from's cart into to's cart and deletes
	// from's cart. A missing source cart is not an error.
	TransferCart(ctx context.Context, from, to domain.Owner) error
}
