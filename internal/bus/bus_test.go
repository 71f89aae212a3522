package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageAdded, Topic: "a_b", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageAdded {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessageAdded)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("relay.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindInboxUpdated})
	b.Publish(Event{Kind: KindRelayDelivered})

	select {
	case evt := <-ch:
		if evt.Kind != KindRelayDelivered {
			t.Errorf("got kind %q, want %s", evt.Kind, KindRelayDelivered)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTopicFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeTopic("message.", "a_b", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageAdded, Topic: "a_c"})
	b.Publish(Event{Kind: KindMessageChanged, Topic: "a_b"})

	select {
	case evt := <-ch:
		if evt.Topic != "a_b" || evt.Kind != KindMessageChanged {
			t.Errorf("got %+v, want message.changed on a_b", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: KindInboxUpdated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindMessageAdded, Payload: 1})
	// Buffer is full, so this one is dropped without blocking.
	b.Publish(Event{Kind: KindMessageAdded, Payload: 2})

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
	if d := b.Dropped(); d != 1 {
		t.Errorf("dropped = %d, want 1", d)
	}
}
