package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/identity"
	"github.com/shopspring/decimal"
)

var prices = map[string]decimal.Decimal{
	"kit-1": decimal.RequireFromString("49.99"),
	"kit-2": decimal.RequireFromString("89.99"),
	"kit-3": decimal.RequireFromString("129.99"),
	"kit-4": decimal.RequireFromString("69.99"),
}

// refusedErr is a server answer to an invalid request.
type refusedErr string

func (e refusedErr) Error() string { return string(e) }

func (refusedErr) Refused() bool { return true }

// fakeRemote behaves like the storefront cart API backed by one map.
type fakeRemote struct {
	mu     sync.Mutex
	carts  map[string][]domain.CartLineItem
	nextID int
	calls  int
	err    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{carts: map[string][]domain.CartLineItem{}}
}

func (f *fakeRemote) GetCart(_ context.Context, p Principal) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cart := domain.EmptyCart(p.Owner)
	cart.Items = append(cart.Items, f.carts[p.Owner.Key()]...)
	return cart, nil
}

func (f *fakeRemote) AddItem(_ context.Context, p Principal, catalogItemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	price, ok := prices[catalogItemID]
	if !ok {
		return refusedErr("unknown catalog item")
	}
	f.nextID++
	line := domain.CartLineItem{
		LineID:        fmt.Sprintf("line-%d", f.nextID),
		CatalogItemID: catalogItemID,
		UnitPrice:     price,
		Quantity:      quantity,
		DisplayName:   catalogItemID,
	}
	key := p.Owner.Key()
	f.carts[key] = domain.MergeLines(f.carts[key], []domain.CartLineItem{line})
	return nil
}

func (f *fakeRemote) UpdateQuantity(_ context.Context, p Principal, lineID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	for i, line := range f.carts[p.Owner.Key()] {
		if line.LineID == lineID {
			f.carts[p.Owner.Key()][i].Quantity = quantity
			return nil
		}
	}
	return errors.New("line not found")
}

func (f *fakeRemote) RemoveItem(_ context.Context, p Principal, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	lines := f.carts[p.Owner.Key()]
	for i, line := range lines {
		if line.LineID == lineID {
			f.carts[p.Owner.Key()] = append(lines[:i:i], lines[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRemote) MergeCarts(_ context.Context, sessionID string, account Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	from := domain.AnonymousOwner(sessionID).Key()
	to := account.Owner.Key()
	if src, ok := f.carts[from]; ok {
		f.carts[to] = domain.MergeLines(f.carts[to], src)
		delete(f.carts, from)
	}
	return nil
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRemote) lines(owner domain.Owner) []domain.CartLineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartLineItem(nil), f.carts[owner.Key()]...)
}

type fakeIdentity struct {
	mu      sync.Mutex
	current *identity.Identity
	err     error
	events  chan identity.Event
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{events: make(chan identity.Event, 4)}
}

func (f *fakeIdentity) Current() (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return identity.Identity{}, f.err
	}
	if f.current == nil {
		return identity.Identity{}, identity.ErrNotSignedIn
	}
	return *f.current, nil
}

func (f *fakeIdentity) Subscribe() (<-chan identity.Event, func()) {
	return f.events, func() {}
}

func (f *fakeIdentity) signIn(accountID string) {
	f.mu.Lock()
	f.current = &identity.Identity{AccountID: accountID, Token: "token-" + accountID}
	f.mu.Unlock()
	f.events <- identity.Event{Kind: identity.SignedIn, AccountID: accountID}
}

type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemStorage() *memStorage {
	return &memStorage{values: map[string]string{}}
}

func (m *memStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.values, key)
	return nil
}
