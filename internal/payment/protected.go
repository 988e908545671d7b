package payment

import (
	"context"
	"time"

	"github.com/fjod/aquakit/pkg/circuitbreaker"
	"go.uber.org/zap"
)

// ProtectedGateway bounds every charge with a timeout and stops calling the
// processor while it keeps failing.
type ProtectedGateway struct {
	next    Gateway
	timeout time.Duration
	breaker *circuitbreaker.Breaker[ChargeResult]
}

func NewProtectedGateway(next Gateway, timeout time.Duration, cfg circuitbreaker.Config, log *zap.Logger) *ProtectedGateway {
	return &ProtectedGateway{
		next:    next,
		timeout: timeout,
		breaker: circuitbreaker.New[ChargeResult](cfg, log, nil),
	}
}

func (g *ProtectedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return g.breaker.Execute(func() (ChargeResult, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.next.Charge(ctx, req)
	})
}

func (g *ProtectedGateway) State() string {
	return g.breaker.State()
}
