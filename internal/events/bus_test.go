package events

import "testing"

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(1)
	defer cancelA()
	b, cancelB := bus.Subscribe(1)
	defer cancelB()

	bus.Publish(Event{Kind: SessionsChanged, Keys: []string{"#2016-402"}})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		got := <-ch
		if got.Kind != SessionsChanged || len(got.Keys) != 1 {
			t.Fatalf("subscriber %s: unexpected event %+v", name, got)
		}
	}
}

func TestPublish_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Kind: IndexingStarted})
	bus.Publish(Event{Kind: IndexingStopped})

	if got := <-ch; got.Kind != IndexingStarted {
		t.Fatalf("expected first event to be kept, got %s", got.Kind)
	}
	select {
	case got := <-ch:
		t.Fatalf("expected second event to be dropped, got %s", got.Kind)
	default:
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(Event{Kind: WWDCWeekStarted})
}

func TestProgressFraction(t *testing.T) {
	if got := (Progress{Total: 4, Completed: 1}).Fraction(); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if got := (Progress{}).Fraction(); got != 1 {
		t.Fatalf("expected 1 for empty pass, got %v", got)
	}
}
