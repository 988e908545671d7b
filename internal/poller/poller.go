package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errMalformedEvent = errors.New("malformed checkout event")

type CartClearer interface {
	ClearCartUpdatedBefore(ctx context.Context, owner domain.Owner, cutoff time.Time) (bool, error)
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller empties an account's cart once its checkout is published, unless the
// cart was written after the order completed. A cart started after paying
// survives late and redelivered events.
type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *zap.Logger
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(carts CartClearer, reader MessageReader, log *zap.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, log: log.Named("cart-cleanup")}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.processNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (p *Poller) processNext(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Error("error reading message", zap.Error(err))
		}
		return
	}

	err = p.handle(ctx, m)
	switch {
	case errors.Is(err, errMalformedEvent):
		// poison messages are committed so they do not block the partition
		p.log.Warn("skipping message", zap.Int64("offset", m.Offset), zap.Error(err))
	case err != nil:
		p.log.Error("failed to clear cart, message will be redelivered",
			zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.log.Error("failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType := header(m, "event_type"); eventType != "" && eventType != orders.EventCheckoutCompleted {
		return nil
	}

	var event orders.CheckoutCompleted
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}
	if event.AccountID == "" {
		return fmt.Errorf("%w: missing account_id", errMalformedEvent)
	}
	if event.CompletedAt.IsZero() {
		return fmt.Errorf("%w: missing completed_at", errMalformedEvent)
	}

	cleared, err := p.carts.ClearCartUpdatedBefore(ctx, domain.AccountOwner(event.AccountID), event.CompletedAt)
	if err != nil {
		return err
	}
	p.log.Info("checkout event applied",
		zap.String("account_id", event.AccountID),
		zap.String("order_id", event.OrderID.String()),
		zap.Bool("cart_cleared", cleared))
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
