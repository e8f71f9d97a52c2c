package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// fakeRedis keeps lists in memory. Index 0 is the LEFT end.
type fakeRedis struct {
	mu    sync.Mutex
	lists map[string][]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{lists: map[string][]string{}} }

func (f *fakeRedis) snapshot(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.(string))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LMove(_ context.Context, source, destination, srcpos, destpos string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.lists[source]
	if len(src) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	var v string
	if srcpos == "RIGHT" {
		v, f.lists[source] = src[len(src)-1], src[:len(src)-1]
	} else {
		v, f.lists[source] = src[0], src[1:]
	}
	if destpos == "RIGHT" {
		f.lists[destination] = append(f.lists[destination], v)
	} else {
		f.lists[destination] = append([]string{v}, f.lists[destination]...)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) BLMove(ctx context.Context, source, destination, srcpos, destpos string, _ time.Duration) *redis.StringCmd {
	cmd := f.LMove(ctx, source, destination, srcpos, destpos)
	if errors.Is(cmd.Err(), redis.Nil) {
		select {
		case <-ctx.Done():
			return redis.NewStringResult("", ctx.Err())
		case <-time.After(2 * time.Millisecond):
		}
	}
	return cmd
}

func (f *fakeRedis) LRem(_ context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []string
	removed := int64(0)
	for _, v := range f.lists[key] {
		if v == value.(string) && removed < count {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	f.lists[key] = kept
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) Close() error { return nil }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRedisQueueRequeuesFailedInvocation(t *testing.T) {
	client := newFakeRedis()
	q := newRedisQueue(client, "", time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, "inv-1"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, id)
		if len(seen) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- q.Consume(ctx, 2, handler) }()

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})
	eventually(t, func() bool {
		return len(client.snapshot(q.queue)) == 0 && len(client.snapshot(q.inflight)) == 0
	})
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if seen[0] != "inv-1" || seen[1] != "inv-1" {
		t.Fatalf("expected the id twice, got %v", seen)
	}
}

func TestRedisQueueRestoresInflightIDs(t *testing.T) {
	client := newFakeRedis()
	q := newRedisQueue(client, "custom", time.Millisecond)
	client.lists[q.inflight] = []string{"inv-2"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 1)
	go func() {
		_ = q.Consume(ctx, 1, func(_ context.Context, id string) error {
			handled <- id
			return nil
		})
	}()

	select {
	case id := <-handled:
		if id != "inv-2" {
			t.Fatalf("unexpected id %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight id was not redelivered")
	}
	if q.inflight != "custom:inflight" {
		t.Fatalf("unexpected in-flight key %q", q.inflight)
	}
}

type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	rejected []uint64
	requeue  map[uint64]bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue[tag] = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, tag)
	a.requeue[tag] = requeue
	return nil
}

type fakeChannel struct {
	deliveries chan amqp.Delivery
	published  []amqp.Publishing
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestRabbitMQQueueSettlesDeliveries(t *testing.T) {
	ack := &fakeAcknowledger{requeue: map[uint64]bool{}}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 3)}
	q := newRabbitMQQueue(ch, "")

	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("ok")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("fail")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("  ")}
	close(ch.deliveries)

	var mu sync.Mutex
	var handled []string
	err := q.Consume(context.Background(), 1, func(_ context.Context, id string) error {
		mu.Lock()
		handled = append(handled, id)
		mu.Unlock()
		if id == "fail" {
			return errors.New("claim failed")
		}
		return nil
	})
	if err == nil {
		t.Fatalf("closed delivery stream should end Consume with an error")
	}

	if len(handled) != 2 {
		t.Fatalf("blank delivery must not reach the handler: %v", handled)
	}
	if len(ack.acked) != 1 || ack.acked[0] != 1 {
		t.Fatalf("unexpected acks %v", ack.acked)
	}
	if len(ack.nacked) != 1 || ack.nacked[0] != 2 || !ack.requeue[2] {
		t.Fatalf("failed delivery should be nacked with requeue, got %v %v", ack.nacked, ack.requeue)
	}
	if len(ack.rejected) != 1 || ack.rejected[0] != 3 || ack.requeue[3] {
		t.Fatalf("blank delivery should be rejected without requeue, got %v %v", ack.rejected, ack.requeue)
	}
}

func TestRabbitMQQueuePublishesPersistentMessages(t *testing.T) {
	ch := &fakeChannel{}
	q := newRabbitMQQueue(ch, "q")
	if err := q.Publish(context.Background(), "inv-3"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	msg := ch.published[0]
	if string(msg.Body) != "inv-3" || msg.MessageId != "inv-3" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", msg)
	}
}

func TestMemoryQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one queued id, got %d", q.Len())
	}
	_ = q.Close()
	if err := q.Publish(context.Background(), "b"); err == nil {
		t.Fatalf("publish after close should fail")
	}
}
