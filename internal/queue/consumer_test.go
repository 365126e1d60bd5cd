package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	consumeErr error
	prefetch   int
	tags       []string
	canceled   []string
	closed     bool
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.tags = append(f.tags, consumer)
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, consumer)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) state() (tags, canceled []string, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tags...), append([]string(nil), f.canceled...), f.closed
}

func newTestConsumer(channels ...*fakeChannel) (*RabbitMQConsumer, func() int) {
	consumer := NewRabbitMQConsumer(nil, 1, nil, nil)
	consumer.backoff = time.Millisecond

	var mu sync.Mutex
	opened := 0
	consumer.open = func(ctx context.Context) (deliveryChannel, error) {
		mu.Lock()
		defer mu.Unlock()
		if opened >= len(channels) {
			return nil, errors.New("broker unavailable")
		}
		ch := channels[opened]
		opened++
		return ch, nil
	}

	return consumer, func() int {
		mu.Lock()
		defer mu.Unlock()
		return opened
	}
}

func TestConsumeFinishesInFlightDeliveryOnShutdown(t *testing.T) {
	t.Parallel()

	ack := &fakeAcknowledger{}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 2)}
	ch.deliveries <- newDelivery(ack, 1, `{"type":"email","to":"a@b.c"}`)
	consumer, _ := newTestConsumer(ch)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	var handled int
	var handlerCtxErr error
	handler := func(hctx context.Context, msg Message) error {
		handled++
		close(started)
		<-release
		handlerCtxErr = hctx.Err()
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, "notifications", handler)
	}()

	<-started
	// A delivery that arrives after shutdown begins must stay unacked.
	ch.deliveries <- newDelivery(ack, 2, `{"type":"email","to":"b@b.c"}`)
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume() did not return after cancellation")
	}

	call := ack.only(t)
	if call.method != "ack" || call.tag != 1 {
		t.Fatalf("call = %+v, want ack of tag 1", call)
	}
	if handled != 1 {
		t.Fatalf("handled = %d, want 1", handled)
	}
	if handlerCtxErr != nil {
		t.Fatalf("handler context error = %v, want nil", handlerCtxErr)
	}

	tags, canceled, closed := ch.state()
	if len(tags) != 1 || len(canceled) != 1 || canceled[0] != tags[0] {
		t.Fatalf("tags = %v canceled = %v, want the consumer tag canceled once", tags, canceled)
	}
	if !closed {
		t.Fatal("channel should be closed on shutdown")
	}
}

func TestConsumeResubscribesAfterDeliveryChannelCloses(t *testing.T) {
	t.Parallel()

	lost := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	close(lost.deliveries)

	ack := &fakeAcknowledger{}
	healthy := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	healthy.deliveries <- newDelivery(ack, 9, `{"type":"whatsapp","to":"+1","message":"hi"}`)

	consumer, opened := newTestConsumer(lost, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got Message
	handler := func(hctx context.Context, msg Message) error {
		got = msg
		cancel()
		return nil
	}

	if err := consumer.Consume(ctx, "notifications", handler); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if opened() != 2 {
		t.Fatalf("opened channels = %d, want 2", opened())
	}
	if _, _, closed := lost.state(); !closed {
		t.Fatal("lost channel should be closed before resubscribing")
	}
	if got.Event.To != "+1" {
		t.Fatalf("event = %+v, want delivery from the new subscription", got.Event)
	}
	if call := ack.only(t); call.method != "ack" || call.tag != 9 {
		t.Fatalf("call = %+v, want ack of tag 9", call)
	}
	if healthy.prefetch != 1 {
		t.Fatalf("prefetch = %d, want 1", healthy.prefetch)
	}
}

func TestConsumeRetriesWhenSubscribeFails(t *testing.T) {
	t.Parallel()

	broken := &fakeChannel{consumeErr: errors.New("channel closed")}
	ack := &fakeAcknowledger{}
	healthy := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	healthy.deliveries <- newDelivery(ack, 3, `{"type":"email","to":"a@b.c"}`)

	consumer, opened := newTestConsumer(broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(hctx context.Context, msg Message) error {
		cancel()
		return nil
	}

	if err := consumer.Consume(ctx, "notifications", handler); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if opened() != 2 {
		t.Fatalf("opened channels = %d, want 2", opened())
	}
	if _, _, closed := broken.state(); !closed {
		t.Fatal("failed channel should be closed")
	}
	ack.only(t)
}

func TestConsumeRequiresInitializedConsumer(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(nil, 1, nil, nil)
	if err := consumer.Consume(context.Background(), "notifications", func(context.Context, Message) error { return nil }); err == nil {
		t.Fatal("expected error for consumer without broker")
	}
}
