package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/aquakit/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type mockStore struct {
	mu        sync.Mutex
	events    []*orders.OutboxEvent
	fetchErr  error
	markErr   error
	processed []int64
}

func (m *mockStore) GetUnprocessedEvents(context.Context, int) ([]*orders.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var pending []*orders.OutboxEvent
	for _, e := range m.events {
		if !m.isProcessed(e.ID) {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *mockStore) MarkEventProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockStore) isProcessed(id int64) bool {
	for _, p := range m.processed {
		if p == id {
			return true
		}
	}
	return false
}

func (m *mockStore) processedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.processed...)
}

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failKey  string
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == w.failKey {
			return errors.New("leader not available")
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func event(id int64, aggregate string) *orders.OutboxEvent {
	return &orders.OutboxEvent{
		ID:          id,
		AggregateID: aggregate,
		EventType:   orders.EventCheckoutCompleted,
		Payload:     []byte(`{"order_id":"` + aggregate + `","account_id":"account-1"}`),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	store := &mockStore{events: []*orders.OutboxEvent{event(1, "order-a"), event(2, "order-b")}}
	writer := &mockWriter{}
	p := NewOutboxPoller(store, writer, zaptest.NewLogger(t))

	n := p.processUnpublishedEvents(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.processedIDs())
	require.Len(t, writer.messages, 2)
	msg := writer.messages[0]
	assert.Equal(t, "order-a", string(msg.Key))
	assert.JSONEq(t, `{"order_id":"order-a","account_id":"account-1"}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, orders.EventCheckoutCompleted, string(msg.Headers[0].Value))
}

func TestProcessUnpublishedEvents_PublishFailureLeavesEventPending(t *testing.T) {
	store := &mockStore{events: []*orders.OutboxEvent{event(1, "order-a"), event(2, "order-b")}}
	writer := &mockWriter{failKey: "order-a"}
	p := NewOutboxPoller(store, writer, zaptest.NewLogger(t))

	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []int64{2}, store.processedIDs())

	// the broker recovers and the next tick retries the event
	writer.failKey = ""
	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []int64{2, 1}, store.processedIDs())
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	store := &mockStore{fetchErr: errors.New("connection reset")}
	writer := &mockWriter{}
	p := NewOutboxPoller(store, writer, zaptest.NewLogger(t))

	assert.Zero(t, p.processUnpublishedEvents(context.Background()))
	assert.Empty(t, writer.messages)
}

func TestProcessUnpublishedEvents_MarkError(t *testing.T) {
	store := &mockStore{
		events:  []*orders.OutboxEvent{event(1, "order-a")},
		markErr: errors.New("deadlock detected"),
	}
	writer := &mockWriter{}
	p := NewOutboxPoller(store, writer, zaptest.NewLogger(t))

	assert.Zero(t, p.processUnpublishedEvents(context.Background()))
	// published but not marked, so it will be sent again
	assert.Len(t, writer.messages, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &mockStore{events: []*orders.OutboxEvent{event(1, "order-a")}}
	writer := &mockWriter{}
	p := NewOutboxPoller(store, writer, zaptest.NewLogger(t))
	p.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(store.processedIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
