package domain

import (
	"errors"
	"fmt"
	"strings"
)

type OwnerKind string

const (
	OwnerAnonymous OwnerKind = "anon"
	OwnerAccount   OwnerKind = "acct"
)

var ErrInvalidOwner = errors.New("invalid owner reference")

// Owner identifies whose cart is addressed: an anonymous session id generated
// by the client, or an authenticated account id.
type Owner struct {
	Kind OwnerKind
	ID   string
}

func AnonymousOwner(sessionID string) Owner {
	return Owner{Kind: OwnerAnonymous, ID: sessionID}
}

func AccountOwner(accountID string) Owner {
	return Owner{Kind: OwnerAccount, ID: accountID}
}

func (o Owner) IsAnonymous() bool { return o.Kind == OwnerAnonymous }

func (o Owner) IsZero() bool { return o.ID == "" }

// Key is the storage key of the owner, e.g. "anon:6f1c..." or "acct:42".
func (o Owner) Key() string {
	return string(o.Kind) + ":" + o.ID
}

func (o Owner) String() string { return o.Key() }

func (o Owner) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOwner)
	}
	if o.Kind != OwnerAnonymous && o.Kind != OwnerAccount {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOwner, o.Kind)
	}
	return nil
}

func ParseOwnerKey(key string) (Owner, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return Owner{}, fmt.Errorf("%w: %q", ErrInvalidOwner, key)
	}
	o := Owner{Kind: OwnerKind(kind), ID: id}
	if err := o.Validate(); err != nil {
		return Owner{}, err
	}
	return o, nil
}
