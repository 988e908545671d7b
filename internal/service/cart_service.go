package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/aquakit/internal/cache"
	"github.com/fjod/aquakit/internal/catalog"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrUnknownItem     = errors.New("unknown catalog item")
	ErrOutOfStock      = errors.New("catalog item is out of stock")
	ErrInvalidMerge    = errors.New("merge requires an anonymous source and an account target")
)

// Catalog is the read side of the kit catalog used to snapshot line details.
type Catalog interface {
	GetItem(ctx context.Context, id string) (*domain.CatalogItem, error)
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog Catalog
	log     *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog Catalog, log *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		log:     log.Named("cart"),
	}
}

// GetCart never fails for an owner without a stored cart; it returns an empty
// one instead.
func (s *CartService) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(owner.Key(), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.Stringer("owner", owner), zap.Error(err))
		}

		// The version must be read before the repository so that any write
		// committed after this point invalidates the fill below.
		version, versionErr := s.cache.Version(ctx, owner)
		if versionErr != nil {
			s.log.Warn("cache version failed", zap.Stringer("owner", owner), zap.Error(versionErr))
		}

		cart, err = s.repo.GetCart(ctx, owner)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.EmptyCart(owner), nil
		}
		if err != nil {
			return nil, err
		}

		if versionErr == nil {
			go s.fillCache(owner, cart, version)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem increments the owner's line for catalogItemID by quantity, or
// appends a new line with price, name and thumbnail captured from the catalog.
func (s *CartService) AddItem(ctx context.Context, owner domain.Owner, catalogItemID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	item, err := s.catalog.GetItem(ctx, catalogItemID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, catalogItemID)
	}
	if err != nil {
		return fmt.Errorf("catalog lookup failed: %w", err)
	}
	if !item.InStock() {
		return fmt.Errorf("%w: %s", ErrOutOfStock, catalogItemID)
	}

	line := domain.CartLineItem{
		LineID:        uuid.NewString(),
		CatalogItemID: item.ID,
		UnitPrice:     item.Price,
		Quantity:      quantity,
		DisplayName:   item.Name,
		ThumbnailRef:  item.ImageURL,
		AddedAt:       time.Now(),
	}
	if err := s.repo.UpsertLine(ctx, owner, line); err != nil {
		s.log.Error("repo upsert line failed", zap.Stringer("owner", owner), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, owner domain.Owner, lineID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	if err := s.repo.UpdateLineQuantity(ctx, owner, lineID, quantity); err != nil {
		if !errors.Is(err, repository.ErrLineNotFound) {
			s.log.Error("repo update quantity failed", zap.Stringer("owner", owner), zap.Error(err))
		}
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// RemoveItem is idempotent: removing an unknown line or from a missing cart
// succeeds.
func (s *CartService) RemoveItem(ctx context.Context, owner domain.Owner, lineID string) error {
	err := s.repo.RemoveLine(ctx, owner, lineID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		s.log.Error("repo remove line failed", zap.Stringer("owner", owner), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, owner domain.Owner) error {
	err := s.repo.DeleteCart(ctx, owner)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.Error("repo delete cart failed", zap.Stringer("owner", owner), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// ClearCartUpdatedBefore empties the owner's cart only if nothing was written
// to it after cutoff, and reports whether it did. A cart the shopper started
// after cutoff is kept.
func (s *CartService) ClearCartUpdatedBefore(ctx context.Context, owner domain.Owner, cutoff time.Time) (bool, error) {
	err := s.repo.DeleteCartUpdatedBefore(ctx, owner, cutoff)
	if errors.Is(err, repository.ErrCartNotFound) {
		return false, nil
	}
	if err != nil {
		s.log.Error("repo delete cart failed", zap.Stringer("owner", owner), zap.Error(err))
		return false, err
	}

	s.invalidateCache(owner)
	return true, nil
}

// MergeCarts moves the anonymous cart into the account cart. Lines for the
// same catalog item are combined and the anonymous cart is removed.
func (s *CartService) MergeCarts(ctx context.Context, from, to domain.Owner) error {
	if !from.IsAnonymous() || to.Kind != domain.OwnerAccount || from.IsZero() || to.IsZero() {
		return ErrInvalidMerge
	}

	if err := s.repo.TransferCart(ctx, from, to); err != nil {
		s.log.Error("repo transfer cart failed",
			zap.Stringer("from", from), zap.Stringer("to", to), zap.Error(err))
		return err
	}

	s.invalidateCache(from)
	s.invalidateCache(to)
	s.log.Info("cart merged", zap.Stringer("from", from), zap.Stringer("to", to))
	return nil
}

func (s *CartService) fillCache(owner domain.Owner, cart *domain.Cart, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.cache.Set(ctx, owner, cart, version)
	switch {
	case errors.Is(err, cache.ErrStaleVersion):
		s.log.Debug("cache fill skipped, cart changed", zap.Stringer("owner", owner))
	case err != nil:
		s.log.Warn("cache set failed", zap.Stringer("owner", owner), zap.Error(err))
	}
}

func (s *CartService) invalidateCache(owner domain.Owner) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.log.Warn("cache invalidate failed", zap.Stringer("owner", owner), zap.Error(err))
	}
}
