package identity

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

const tokenKey = "auth_token"

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind      EventKind
	AccountID string
}

// Identity is the signed-in account and the bearer token proving it.
type Identity struct {
	AccountID string
	Token     string
}

// Storage is the durable key/value area the tracker keeps the token in.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

var ErrNotSignedIn = errors.New("not signed in")

// Tracker answers who the current shopper is and fans sign-in and sign-out
// events out to subscribers.
type Tracker struct {
	storage Storage
	log     *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewTracker(storage Storage, log *zap.Logger) *Tracker {
	return &Tracker{
		storage: storage,
		log:     log.Named("identity"),
		subs:    make(map[int]chan Event),
	}
}

// Current returns ErrNotSignedIn when no usable token is stored.
func (t *Tracker) Current() (Identity, error) {
	token, ok, err := t.storage.Get(tokenKey)
	if err != nil {
		return Identity{}, err
	}
	if !ok || token == "" {
		return Identity{}, ErrNotSignedIn
	}
	accountID, err := SubjectOf(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{AccountID: accountID, Token: token}, nil
}

func (t *Tracker) SignIn(token string) (Identity, error) {
	accountID, err := SubjectOf(token)
	if err != nil {
		return Identity{}, err
	}
	if err := t.storage.Set(tokenKey, token); err != nil {
		return Identity{}, err
	}

	t.log.Info("signed in", zap.String("account_id", accountID))
	t.publish(Event{Kind: SignedIn, AccountID: accountID})
	return Identity{AccountID: accountID, Token: token}, nil
}

func (t *Tracker) SignOut() error {
	if err := t.storage.Delete(tokenKey); err != nil {
		return err
	}
	t.log.Info("signed out")
	t.publish(Event{Kind: SignedOut})
	return nil
}

// Subscribe returns a channel of identity events and a function that stops
// delivery and closes the channel.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) publish(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.log.Warn("identity subscriber is full, event dropped",
				zap.Int("subscriber", id), zap.Stringer("event", ev.Kind))
		}
	}
}
