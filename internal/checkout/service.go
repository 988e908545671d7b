package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/fjod/aquakit/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Carts interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	ClearCart(ctx context.Context, owner domain.Owner) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetByIdempotencyKey(ctx context.Context, accountID, key string) (*domain.Order, error)
	MarkPaid(ctx context.Context, order *domain.Order, paymentID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type Request struct {
	IdempotencyKey string
	ShipTo         domain.ShippingAddress
	// ExpectedTotal is the total the shopper confirmed. When set, checkout is
	// refused if the server-side cart prices differently.
	ExpectedTotal *decimal.Decimal
}

type Service struct {
	carts   Carts
	orders  OrderRepository
	gateway payment.Gateway
	log     *zap.Logger
}

func NewService(carts Carts, orders OrderRepository, gateway payment.Gateway, log *zap.Logger) *Service {
	return &Service{
		carts:   carts,
		orders:  orders,
		gateway: gateway,
		log:     log.Named("checkout"),
	}
}

// Checkout turns the account's cart into a paid order. Repeating a request
// with the same idempotency key returns the order created the first time, and
// resumes it if it is still pending. A declined payment returns the failed
// order together with ErrPaymentDeclined and leaves the cart untouched. When
// the processor cannot be reached the order stays pending and the same key can
// be retried.
func (s *Service) Checkout(ctx context.Context, owner domain.Owner, req Request) (*domain.Order, error) {
	if owner.IsAnonymous() || owner.IsZero() {
		return nil, ErrAuthenticationRequired
	}
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}
	if err := validateShipping(req.ShipTo); err != nil {
		return nil, err
	}

	existing, err := s.orders.GetByIdempotencyKey(ctx, owner.ID, req.IdempotencyKey)
	if err == nil {
		return s.replay(ctx, owner, existing)
	}
	if !errors.Is(err, orders.ErrOrderNotFound) {
		return nil, fmt.Errorf("lookup order by idempotency key: %w", err)
	}

	cart, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	handoff, err := domain.NewHandoff(cart.Items)
	if err != nil {
		return nil, err
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(handoff.Total) {
		return nil, fmt.Errorf("%w: expected %s, now %s", ErrCartChanged,
			req.ExpectedTotal.StringFixed(2), handoff.Total.StringFixed(2))
	}

	order := newOrder(owner.ID, req, handoff)
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateOrder) {
			// a concurrent request with the same key won the insert
			existing, getErr := s.orders.GetByIdempotencyKey(ctx, owner.ID, req.IdempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("lookup order after duplicate insert: %w", getErr)
			}
			return s.replay(ctx, owner, existing)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("account_id", owner.ID),
		zap.String("total", order.Total.StringFixed(2)))

	return s.settle(ctx, owner, order)
}

// settle charges a pending order and records the outcome. The gateway
// returns the original result for an order it already charged, so settling
// the same order again never charges twice.
func (s *Service) settle(ctx context.Context, owner domain.Owner, order *domain.Order) (*domain.Order, error) {
	log := s.log.With(zap.String("order_id", order.ID.String()), zap.String("account_id", owner.ID))

	result, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		OrderID:     order.ID,
		AmountCents: domain.Cents(order.Total),
		Currency:    order.Currency,
	})
	if err != nil {
		log.Error("charge failed, order left pending", zap.Error(err))
		return order, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	if !result.Approved {
		log.Info("payment declined", zap.Stringer("refusal", result.Refusal))
		if err := s.orders.MarkFailed(ctx, order.ID, result.Reason()); err != nil {
			return nil, fmt.Errorf("mark order failed: %w", err)
		}
		order.Status = domain.OrderStatusFailed
		order.FailureReason = result.Reason()
		return order, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Refusal)
	}

	if err := s.orders.MarkPaid(ctx, order, result.PaymentID); err != nil {
		if !errors.Is(err, orders.ErrIllegalTransition) {
			log.Error("mark order paid failed, order left pending",
				zap.String("payment_id", result.PaymentID), zap.Error(err))
			return nil, fmt.Errorf("mark order paid: %w", err)
		}
		// a concurrent retry recorded the outcome first
		current, getErr := s.orders.GetByIdempotencyKey(ctx, owner.ID, order.IdempotencyKey)
		if getErr != nil {
			return nil, fmt.Errorf("lookup order after concurrent settle: %w", getErr)
		}
		return s.replay(ctx, owner, current)
	}
	order.Status = domain.OrderStatusPaid
	order.PaymentID = result.PaymentID
	log.Info("order paid", zap.String("payment_id", result.PaymentID))

	// The checkout.completed event clears the cart as well if this fails.
	if err := s.carts.ClearCart(ctx, owner); err != nil {
		log.Warn("clear cart after checkout failed", zap.Error(err))
	}
	return order, nil
}

func (s *Service) replay(ctx context.Context, owner domain.Owner, order *domain.Order) (*domain.Order, error) {
	switch order.Status {
	case domain.OrderStatusFailed:
		return order, fmt.Errorf("%w: %s", ErrPaymentDeclined, order.FailureReason)
	case domain.OrderStatusPending:
		s.log.Info("resuming pending order", zap.String("order_id", order.ID.String()))
		return s.settle(ctx, owner, order)
	default:
		return order, nil
	}
}

func newOrder(accountID string, req Request, h domain.Handoff) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:             uuid.New(),
		AccountID:      accountID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         domain.OrderStatusPending,
		Items:          h.Items,
		Subtotal:       h.Subtotal,
		Tax:            h.Tax,
		Shipping:       h.Shipping,
		Total:          h.Total,
		Currency:       h.Currency,
		ShipTo:         req.ShipTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func validateShipping(a domain.ShippingAddress) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"email", a.Email},
		{"street", a.Street},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidShipping, strings.Join(missing, ", "))
	}
	return nil
}
