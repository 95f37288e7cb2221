package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicAssignments)

	evt := Event{Type: "assignment.created", Data: map[string]any{"orderId": "o1"}}
	b.Publish(TopicAssignments, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["orderId"].(string) != "o1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(TopicAssignments, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	orders := b.Subscribe(TopicOrders)
	cycles := b.Subscribe(TopicCycles)
	defer b.Unsubscribe(TopicCycles, cycles)

	b.Publish(TopicCycles, Event{Type: "cycle.completed"})

	select {
	case evt := <-orders:
		t.Fatalf("orders subscriber got cycle event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case evt := <-cycles:
		if evt.Type != "cycle.completed" {
			t.Fatalf("got %s", evt.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for cycle event")
	}
	b.Unsubscribe(TopicOrders, orders)
}

func TestBrokerPublishDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicAssignments)
	defer b.Unsubscribe(TopicAssignments, ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicAssignments, Event{Type: "assignment.created"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisBroker: %v", err)
	}

	ch := b.Subscribe(TopicOrders)
	b.Publish(TopicOrders, Event{Type: "order.breached", Data: map[string]any{"orderId": "o9"}})

	select {
	case got := <-ch:
		if got.Type != "order.breached" {
			t.Fatalf("got type %s", got.Type)
		}
		if got.Data["orderId"].(string) != "o9" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	// Unsubscribe closes the underlying PubSub and, through the reader
	// goroutine, the channel.
	b.Unsubscribe(TopicOrders, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
