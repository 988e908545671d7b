package poller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// fakeCarts records clears and keeps any cart whose last write is after the
// cutoff.
type fakeCarts struct {
	cleared   []domain.Owner
	updatedAt map[string]time.Time
	err       error
}

func (f *fakeCarts) ClearCartUpdatedBefore(_ context.Context, owner domain.Owner, cutoff time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.updatedAt[owner.Key()].After(cutoff) {
		return false, nil
	}
	f.cleared = append(f.cleared, owner)
	return true, nil
}

// fakeReader hands out queued messages, then blocks until the context ends.
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func checkoutMessage(t *testing.T, offset int64, accountID string) kafka.Message {
	return checkoutMessageAt(t, offset, accountID, time.Now())
}

func checkoutMessageAt(t *testing.T, offset int64, accountID string, completedAt time.Time) kafka.Message {
	payload, err := json.Marshal(orders.CheckoutCompleted{
		OrderID:     uuid.New(),
		AccountID:   accountID,
		Total:       "224.66",
		Currency:    "CAD",
		CompletedAt: completedAt,
	})
	assert.NilError(t, err)
	return kafka.Message{
		Offset:  offset,
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(orders.EventCheckoutCompleted)}},
	}
}

func TestProcessNext_ClearsAccountCart(t *testing.T) {
	carts := &fakeCarts{}
	reader := &fakeReader{queue: []kafka.Message{checkoutMessage(t, 7, "account-1")}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	p.processNext(context.Background())

	assert.DeepEqual(t, carts.cleared, []domain.Owner{domain.AccountOwner("account-1")})
	assert.DeepEqual(t, reader.committed, []int64{7})
}

func TestProcessNext_KeepsCartStartedAfterCheckout(t *testing.T) {
	completedAt := time.Now().Add(-time.Minute)
	carts := &fakeCarts{updatedAt: map[string]time.Time{
		domain.AccountOwner("account-1").Key(): time.Now(),
	}}
	msg := checkoutMessageAt(t, 3, "account-1", completedAt)
	// a late event and its redelivery
	reader := &fakeReader{queue: []kafka.Message{msg, msg}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	p.processNext(context.Background())
	p.processNext(context.Background())

	assert.Check(t, is.Len(carts.cleared, 0))
	assert.DeepEqual(t, reader.committed, []int64{3, 3})
}

func TestProcessNext_MalformedPayloadIsCommitted(t *testing.T) {
	carts := &fakeCarts{}
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`{not json`)},
		{Offset: 2, Value: []byte(`{"order_id":"` + uuid.NewString() + `"}`)},
		{Offset: 3, Value: []byte(`{"account_id":"account-1"}`)},
	}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	p.processNext(context.Background())
	p.processNext(context.Background())
	p.processNext(context.Background())

	assert.Check(t, is.Len(carts.cleared, 0))
	assert.DeepEqual(t, reader.committed, []int64{1, 2, 3})
}

func TestProcessNext_ClearFailureIsNotCommitted(t *testing.T) {
	carts := &fakeCarts{err: errors.New("mongo unavailable")}
	reader := &fakeReader{queue: []kafka.Message{checkoutMessage(t, 5, "account-1")}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	p.processNext(context.Background())

	assert.Check(t, is.Len(reader.committed, 0))
}

func TestProcessNext_IgnoresOtherEventTypes(t *testing.T) {
	carts := &fakeCarts{}
	msg := checkoutMessage(t, 9, "account-1")
	msg.Headers = []kafka.Header{{Key: "event_type", Value: []byte("order.shipped")}}
	reader := &fakeReader{queue: []kafka.Message{msg}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	p.processNext(context.Background())

	assert.Check(t, is.Len(carts.cleared, 0))
	assert.DeepEqual(t, reader.committed, []int64{9})
}

func TestRun_StopsOnCancel(t *testing.T) {
	carts := &fakeCarts{}
	reader := &fakeReader{queue: []kafka.Message{checkoutMessage(t, 1, "account-1")}}
	p := NewPoller(carts, reader, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	p.Close()
	assert.Check(t, reader.closed)
	assert.Check(t, is.Len(carts.cleared, 1))
}
