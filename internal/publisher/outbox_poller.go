// Package publisher relays committed outbox events to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/aquakit/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const batchSize = 100

type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*orders.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller delivers events at least once: an event is marked processed
// only after Kafka accepted it, so a crash in between republishes it.
type OutboxPoller struct {
	tick   time.Duration
	store  EventStore
	writer MessageWriter
	log    *zap.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(store EventStore, writer MessageWriter, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		tick:   time.Second,
		store:  store,
		writer: writer,
		log:    log.Named("outbox"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.store.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.store.MarkEventProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	if published > 0 {
		p.log.Debug("published outbox events", zap.Int("count", published))
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *orders.OutboxEvent) error {
	// keyed by order id so events for one order stay on one partition
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}
