package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/aquakit/pkg/circuitbreaker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCalcStatus(t *testing.T) {
	tests := []struct {
		name     string
		roll     int
		approved bool
		refusal  Refusal
	}{
		{"success low", 10, true, RefusalUnknown},
		{"success edge", 94, true, RefusalUnknown},
		{"first failure is unknown", 95, false, RefusalUnknown},
		{"insufficient funds", 96, false, RefusalInsufficientFunds},
		{"limit exceeded", 100, false, RefusalLimitExceeded},
		{"beyond known refusals", 101, false, RefusalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, refusal := calcStatus(tt.roll, 95)
			assert.Equal(t, tt.approved, approved)
			assert.Equal(t, tt.refusal, refusal)
		})
	}
}

func TestSimulatedGateway_Charge(t *testing.T) {
	g := NewSimulatedGateway(95)
	req := ChargeRequest{OrderID: uuid.New(), AmountCents: 6648, Currency: "CAD"}

	g.roll = func() int { return 3 }
	res, err := g.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.NotEmpty(t, res.PaymentID)
	assert.Empty(t, res.Reason())

	g.roll = func() int { return 97 }
	req.OrderID = uuid.New()
	res, err = g.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Empty(t, res.PaymentID)
	assert.Equal(t, "payment declined: card expired", res.Reason())
}

func TestSimulatedGateway_SettlesOrderOnce(t *testing.T) {
	g := NewSimulatedGateway(95)
	req := ChargeRequest{OrderID: uuid.New(), AmountCents: 6648, Currency: "CAD"}

	rolls := 0
	g.roll = func() int { rolls++; return 3 }
	first, err := g.Charge(context.Background(), req)
	require.NoError(t, err)

	g.roll = func() int { rolls++; return 97 }
	again, err := g.Charge(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 1, rolls)
}

func TestSimulatedGateway_RejectsBadInput(t *testing.T) {
	g := NewSimulatedGateway(100)

	_, err := g.Charge(context.Background(), ChargeRequest{OrderID: uuid.New()})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Charge(ctx, ChargeRequest{OrderID: uuid.New(), AmountCents: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingGateway struct {
	calls int
	err   error
	delay time.Duration
}

func (f *failingGateway) Charge(ctx context.Context, _ ChargeRequest) (ChargeResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ChargeResult{}, f.err
	}
	return ChargeResult{Approved: false, Refusal: RefusalCardBlocked}, nil
}

func TestProtectedGateway_TripsOnErrors(t *testing.T) {
	inner := &failingGateway{err: errors.New("processor unreachable")}
	cfg := circuitbreaker.Config{Name: "payment", ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}
	g := NewProtectedGateway(inner, time.Second, cfg, zaptest.NewLogger(t))
	req := ChargeRequest{OrderID: uuid.New(), AmountCents: 100}

	for i := 0; i < 2; i++ {
		_, err := g.Charge(context.Background(), req)
		assert.ErrorContains(t, err, "unreachable")
	}

	_, err := g.Charge(context.Background(), req)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "open", g.State())
}

func TestProtectedGateway_DeclinesDoNotTrip(t *testing.T) {
	inner := &failingGateway{}
	cfg := circuitbreaker.Config{Name: "payment", ConsecutiveFailures: 1, OpenTimeout: time.Minute, HalfOpenRequests: 1}
	g := NewProtectedGateway(inner, time.Second, cfg, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		res, err := g.Charge(context.Background(), ChargeRequest{OrderID: uuid.New(), AmountCents: 100})
		require.NoError(t, err)
		assert.False(t, res.Approved)
	}
	assert.Equal(t, "closed", g.State())
}

func TestProtectedGateway_Timeout(t *testing.T) {
	inner := &failingGateway{delay: time.Second}
	g := NewProtectedGateway(inner, 20*time.Millisecond, circuitbreaker.DefaultConfig("payment"), zaptest.NewLogger(t))

	_, err := g.Charge(context.Background(), ChargeRequest{OrderID: uuid.New(), AmountCents: 100})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
