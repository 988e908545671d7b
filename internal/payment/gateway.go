// Package payment charges orders. Only a simulated processor is provided; a
// real processor plugs in behind Gateway.
package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Refusal int

const (
	RefusalUnknown Refusal = iota
	RefusalInsufficientFunds
	RefusalCardExpired
	RefusalCardBlocked
	RefusalFraudSuspected
	RefusalLimitExceeded
)

func (r Refusal) String() string {
	switch r {
	case RefusalInsufficientFunds:
		return "insufficient funds"
	case RefusalCardExpired:
		return "card expired"
	case RefusalCardBlocked:
		return "card blocked"
	case RefusalFraudSuspected:
		return "fraud suspected"
	case RefusalLimitExceeded:
		return "limit exceeded"
	default:
		return "unknown reason"
	}
}

type ChargeRequest struct {
	OrderID     uuid.UUID
	AmountCents int64
	Currency    string
}

// ChargeResult describes a processed charge. A declined charge is a result,
// not an error; errors mean the processor could not be reached.
type ChargeResult struct {
	PaymentID string
	Approved  bool
	Refusal   Refusal
}

func (r ChargeResult) Reason() string {
	if r.Approved {
		return ""
	}
	return fmt.Sprintf("payment declined: %s", r.Refusal)
}

// Gateway charges are idempotent per OrderID: charging an order that was
// already settled returns the original result without charging again.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// SimulatedGateway approves successRate percent of charges and declines the
// rest with a pseudo-random refusal.
type SimulatedGateway struct {
	successRate int
	roll        func() int

	mu      sync.Mutex
	settled map[uuid.UUID]ChargeResult
}

func NewSimulatedGateway(successRate int) *SimulatedGateway {
	return &SimulatedGateway{
		successRate: successRate,
		roll:        func() int { return rand.IntN(101) },
		settled:     make(map[uuid.UUID]ChargeResult),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if req.AmountCents <= 0 {
		return ChargeResult{}, fmt.Errorf("invalid charge amount %d", req.AmountCents)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if result, ok := g.settled[req.OrderID]; ok {
		return result, nil
	}

	approved, refusal := calcStatus(g.roll(), g.successRate)
	result := ChargeResult{Approved: approved, Refusal: refusal}
	if approved {
		result.PaymentID = fmt.Sprintf("TXN-%d-%s", time.Now().UnixNano(), req.OrderID.String()[:8])
	}
	g.settled[req.OrderID] = result
	return result, nil
}

// calcStatus maps a roll in [0, 100] to an outcome. Rolls just above the
// success rate map onto the known refusals in order.
func calcStatus(roll, successRate int) (bool, Refusal) {
	if roll < successRate {
		return true, RefusalUnknown
	}
	known := roll - successRate
	if known == 0 || known > int(RefusalLimitExceeded) {
		return false, RefusalUnknown
	}
	return false, Refusal(known)
}
