package checkout

import (
	"errors"

	"github.com/fjod/aquakit/internal/domain"
)

var (
	ErrEmptyCart              = domain.ErrEmptyCart
	ErrAuthenticationRequired = errors.New("sign in to check out")
	ErrMissingIdempotencyKey  = errors.New("idempotency key is required")
	ErrInvalidShipping        = errors.New("shipping address is incomplete")
	ErrCartChanged            = errors.New("cart changed since checkout began")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrPaymentUnavailable     = errors.New("payment processor unavailable")
)
