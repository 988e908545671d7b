package http

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/aquakit/internal/catalog"
	"github.com/fjod/aquakit/internal/checkout"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/fjod/aquakit/internal/repository"
	"github.com/fjod/aquakit/internal/results"
	"github.com/fjod/aquakit/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var kits = map[string]*domain.CatalogItem{
	"kit-1": {ID: "kit-1", Name: "Basic Water Test", Price: decimal.RequireFromString("49.99"), Stock: 10},
	"kit-2": {ID: "kit-2", Name: "Advanced Water Test", Price: decimal.RequireFromString("89.99"), Stock: 10},
	"kit-9": {ID: "kit-9", Name: "Discontinued", Price: decimal.RequireFromString("19.99")},
}

type fakeCatalog struct{}

func (fakeCatalog) ListItems(context.Context) ([]*domain.CatalogItem, error) {
	return []*domain.CatalogItem{kits["kit-1"], kits["kit-2"]}, nil
}

func (fakeCatalog) GetItem(_ context.Context, id string) (*domain.CatalogItem, error) {
	item, ok := kits[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return item, nil
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string][]domain.CartLineItem
	err   error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string][]domain.CartLineItem)}
}

func (f *fakeCarts) GetCart(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cart := domain.EmptyCart(owner)
	cart.Items = append(cart.Items, f.carts[owner.Key()]...)
	return cart, nil
}

func (f *fakeCarts) AddItem(_ context.Context, owner domain.Owner, catalogItemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if quantity < 1 {
		return service.ErrInvalidQuantity
	}
	item, ok := kits[catalogItemID]
	if !ok {
		return service.ErrUnknownItem
	}
	if !item.InStock() {
		return service.ErrOutOfStock
	}
	line := domain.CartLineItem{
		LineID:        "line-" + catalogItemID,
		CatalogItemID: catalogItemID,
		UnitPrice:     item.Price,
		Quantity:      quantity,
		DisplayName:   item.Name,
	}
	f.carts[owner.Key()] = domain.MergeLines(f.carts[owner.Key()], []domain.CartLineItem{line})
	return nil
}

func (f *fakeCarts) UpdateQuantity(_ context.Context, owner domain.Owner, lineID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if quantity < 1 {
		return service.ErrInvalidQuantity
	}
	lines := f.carts[owner.Key()]
	for i := range lines {
		if lines[i].LineID == lineID {
			lines[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrLineNotFound
}

func (f *fakeCarts) RemoveItem(_ context.Context, owner domain.Owner, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.CartLineItem
	for _, l := range f.carts[owner.Key()] {
		if l.LineID != lineID {
			kept = append(kept, l)
		}
	}
	f.carts[owner.Key()] = kept
	return nil
}

func (f *fakeCarts) ClearCart(_ context.Context, owner domain.Owner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, owner.Key())
	return nil
}

func (f *fakeCarts) MergeCarts(_ context.Context, from, to domain.Owner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !from.IsAnonymous() || to.IsAnonymous() {
		return service.ErrInvalidMerge
	}
	f.carts[to.Key()] = domain.MergeLines(f.carts[to.Key()], f.carts[from.Key()])
	delete(f.carts, from.Key())
	return nil
}

type fakeTokens map[string]string

func (f fakeTokens) Validate(token string) (string, error) {
	if account, ok := f[token]; ok {
		return account, nil
	}
	return "", errors.New("token is expired")
}

type fakeCheckout struct {
	order *domain.Order
	err   error
	got   checkout.Request
	owner domain.Owner
}

func (f *fakeCheckout) Checkout(_ context.Context, owner domain.Owner, req checkout.Request) (*domain.Order, error) {
	f.owner = owner
	f.got = req
	return f.order, f.err
}

type fakeOrders struct {
	orders []*domain.Order
}

func (f *fakeOrders) ListOrders(_ context.Context, accountID string) ([]*domain.Order, error) {
	out := []*domain.Order{}
	for _, o := range f.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, accountID string, id uuid.UUID) (*domain.Order, error) {
	for _, o := range f.orders {
		if o.ID == id && o.AccountID == accountID {
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

type fakeResults struct {
	results []domain.LabResult
}

func (f *fakeResults) List(_ context.Context, accountID string) ([]domain.LabResult, error) {
	out := []domain.LabResult{}
	for _, r := range f.results {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) Get(_ context.Context, accountID string, id uuid.UUID) (*domain.LabResult, error) {
	for _, r := range f.results {
		if r.ID == id && r.AccountID == accountID {
			return &r, nil
		}
	}
	return nil, results.ErrResultNotFound
}
