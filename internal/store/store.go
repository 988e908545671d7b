// Package store holds the shopper's cart view on the client side and keeps it
// in sync with the storefront API. Every mutation is followed by a full
// refetch; the store never reconciles lines locally.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/identity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const sessionKey = "cart_session_id"

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidItem     = errors.New("catalog item id is required")
	ErrRemote          = errors.New("cart could not be synchronized, please retry")
	ErrRejected        = errors.New("cart change was refused")
	ErrNotSignedIn     = errors.New("sign in required")
	ErrEmptyCart       = domain.ErrEmptyCart
)

// Principal is how a request is attributed on the wire: a bearer token for an
// account, the session id for an anonymous shopper.
type Principal struct {
	Owner domain.Owner
	Token string
}

// Refusal is implemented by remote errors the server answered because the
// request itself was invalid, such as an unknown or sold out item. Repeating
// the same request cannot succeed.
type Refusal interface {
	Refused() bool
}

// Remote is the cart API as seen from the client.
type Remote interface {
	GetCart(ctx context.Context, p Principal) (*domain.Cart, error)
	AddItem(ctx context.Context, p Principal, catalogItemID string, quantity int) error
	UpdateQuantity(ctx context.Context, p Principal, lineID string, quantity int) error
	RemoveItem(ctx context.Context, p Principal, lineID string) error
	MergeCarts(ctx context.Context, sessionID string, account Principal) error
}

// Identity reports the signed-in account and streams sign-in and sign-out
// events.
type Identity interface {
	Current() (identity.Identity, error)
	Subscribe() (<-chan identity.Event, func())
}

// SessionStorage keeps the anonymous session id across runs.
type SessionStorage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusMutating
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusMutating:
		return "mutating"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// View is what subscribers render. Total is always recomputed from Items.
type View struct {
	Status      Status
	Owner       domain.Owner
	Items       []domain.CartLineItem
	Total       decimal.Decimal
	PreviewOpen bool
	// Err is the last synchronization error; the lines may be stale while it
	// is set.
	Err error
}

func (v View) ItemCount() int {
	n := 0
	for _, item := range v.Items {
		n += item.Quantity
	}
	return n
}

func (v View) clone() View {
	v.Items = append([]domain.CartLineItem(nil), v.Items...)
	return v
}

type Store struct {
	remote   Remote
	identity Identity
	storage  SessionStorage
	log      *zap.Logger

	mu       sync.Mutex
	view     View
	loaded   bool
	fallback string // session id used when storage is unavailable
	subs     map[int]func(View)
	nextSub  int
}

func New(remote Remote, ident Identity, storage SessionStorage, log *zap.Logger) *Store {
	return &Store{
		remote:   remote,
		identity: ident,
		storage:  storage,
		log:      log.Named("cart_store"),
		view:     View{Status: StatusUninitialized, Total: decimal.Zero},
		subs:     make(map[int]func(View)),
	}
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn is called without the store lock held.
func (s *Store) Subscribe(fn func(View)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// BeginCheckout freezes the current lines for submission. An empty cart is
// refused with ErrEmptyCart and the shopper belongs back in the catalog.
func (s *Store) BeginCheckout() (domain.Handoff, error) {
	return domain.NewHandoff(s.Snapshot().Items)
}

func (s *Store) FetchCart(ctx context.Context) error {
	s.update(func(v *View) { v.Status = StatusLoading })
	return s.refetch(ctx)
}

func (s *Store) AddItem(ctx context.Context, catalogItemID string, quantity int) error {
	if catalogItemID == "" {
		return ErrInvalidItem
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	p := s.beginMutation()
	if err := s.remote.AddItem(ctx, p, catalogItemID, quantity); err != nil {
		return s.fail("add item", err)
	}

	s.update(func(v *View) { v.PreviewOpen = true })
	return s.refetch(ctx)
}

// UpdateQuantity ignores quantities below 1; removal goes through RemoveItem.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return nil
	}

	p := s.beginMutation()
	if err := s.remote.UpdateQuantity(ctx, p, lineID, quantity); err != nil {
		return s.fail("update quantity", err)
	}
	return s.refetch(ctx)
}

func (s *Store) RemoveItem(ctx context.Context, lineID string) error {
	p := s.beginMutation()
	if err := s.remote.RemoveItem(ctx, p, lineID); err != nil {
		return s.fail("remove item", err)
	}
	return s.refetch(ctx)
}

// MergeOnAuthentication moves the anonymous session's cart into the signed-in
// account. The session id is retired only after the server accepted the
// merge, so a failed merge can be retried.
func (s *Store) MergeOnAuthentication(ctx context.Context) error {
	id, err := s.identity.Current()
	if err != nil {
		return ErrNotSignedIn
	}

	sessionID := s.storedSessionID()
	if sessionID == "" {
		return s.FetchCart(ctx)
	}

	account := Principal{Owner: domain.AccountOwner(id.AccountID), Token: id.Token}
	s.update(func(v *View) { v.Status = StatusMutating })
	if err := s.remote.MergeCarts(ctx, sessionID, account); err != nil {
		return s.fail("merge carts", err)
	}

	if err := s.storage.Delete(sessionKey); err != nil {
		s.log.Warn("retire session id failed", zap.Error(err))
	}
	s.mu.Lock()
	s.fallback = ""
	s.mu.Unlock()
	s.log.Info("anonymous cart merged", zap.String("account_id", id.AccountID))

	return s.refetch(ctx)
}

// Watch follows identity changes until ctx is done: a sign-in merges the
// anonymous cart, a sign-out reloads the anonymous one. It is subscribed by
// the time it returns; the returned channel closes once it has stopped.
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	events, unsubscribe := s.identity.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		s.follow(ctx, events)
	}()
	return done
}

func (s *Store) follow(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var err error
			switch ev.Kind {
			case identity.SignedIn:
				err = s.MergeOnAuthentication(ctx)
			case identity.SignedOut:
				err = s.FetchCart(ctx)
			}
			if err != nil {
				s.log.Warn("identity change handling failed", zap.Stringer("event", ev.Kind), zap.Error(err))
			}
		}
	}
}

func (s *Store) ClosePreview() {
	s.update(func(v *View) { v.PreviewOpen = false })
}

// principal resolves the current owner. Identity failures fall back to the
// anonymous session, which is created on first use.
func (s *Store) principal() Principal {
	id, err := s.identity.Current()
	if err == nil {
		return Principal{Owner: domain.AccountOwner(id.AccountID), Token: id.Token}
	}
	if !errors.Is(err, identity.ErrNotSignedIn) {
		s.log.Debug("identity unavailable, continuing anonymously", zap.Error(err))
	}
	return Principal{Owner: domain.AnonymousOwner(s.sessionID())}
}

func (s *Store) storedSessionID() string {
	id, ok, err := s.storage.Get(sessionKey)
	if err != nil {
		s.log.Warn("read session id failed", zap.Error(err))
	}
	if ok && id != "" {
		return id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

func (s *Store) sessionID() string {
	if id := s.storedSessionID(); id != "" {
		return id
	}

	id := uuid.NewString()
	if err := s.storage.Set(sessionKey, id); err != nil {
		s.log.Warn("persist session id failed", zap.Error(err))
	}
	s.mu.Lock()
	s.fallback = id
	s.mu.Unlock()
	return id
}

func (s *Store) beginMutation() Principal {
	p := s.principal()
	s.update(func(v *View) { v.Status = StatusMutating })
	return p
}

func (s *Store) refetch(ctx context.Context) error {
	p := s.principal()
	cart, err := s.remote.GetCart(ctx, p)
	if err != nil {
		return s.fail("fetch cart", err)
	}

	items := append([]domain.CartLineItem(nil), cart.Items...)
	recomputed := domain.Cart{Items: items}
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	s.update(func(v *View) {
		v.Status = StatusReady
		v.Owner = p.Owner
		v.Items = items
		v.Total = recomputed.Total()
		v.Err = nil
	})
	return nil
}

// fail leaves the lines as they were. Server refusals are reported as
// ErrRejected, everything else as the retry-able ErrRemote.
func (s *Store) fail(op string, err error) error {
	var (
		wrapped error
		refusal Refusal
	)
	if errors.As(err, &refusal) && refusal.Refused() {
		s.log.Info("cart change refused", zap.String("op", op), zap.Error(err))
		wrapped = fmt.Errorf("%w: %s: %w", ErrRejected, op, err)
	} else {
		s.log.Error("cart sync failed", zap.String("op", op), zap.Error(err))
		wrapped = fmt.Errorf("%w: %s: %w", ErrRemote, op, err)
	}

	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	s.update(func(v *View) {
		if loaded {
			v.Status = StatusReady
		} else {
			v.Status = StatusUninitialized
		}
		v.Err = wrapped
	})
	return wrapped
}

func (s *Store) update(mutate func(v *View)) {
	s.mu.Lock()
	mutate(&s.view)
	view := s.view.clone()
	subs := make([]func(View), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}
