package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/checkout"
	"github.com/fjod/aquakit/internal/domain"
	"go.uber.org/zap"
)

type Checkouter interface {
	Checkout(ctx context.Context, owner domain.Owner, req checkout.Request) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout Checkouter
	log      *zap.Logger
}

func NewCheckoutHandler(checkout Checkouter, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log}
}

// Checkout responds 201 with the paid order. A declined payment responds 402
// and the cart stays as it was.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req api.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	order, err := h.checkout.Checkout(r.Context(), ownerFromContext(r.Context()), checkout.Request{
		IdempotencyKey: req.IdempotencyKey,
		ShipTo:         req.Shipping,
		ExpectedTotal:  req.ExpectedTotal,
	})
	if err != nil {
		if errors.Is(err, checkout.ErrPaymentDeclined) && order != nil {
			respondError(w, http.StatusPaymentRequired, api.CodePaymentDeclined, order.FailureReason)
			return
		}
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}
