package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToTypedAndAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	typed := make(chan Event, 4)
	all := make(chan Event, 4)

	bus.Subscribe(EventTradeOpened, func(e Event) { typed <- e })
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishTradeOpened("BTC", "pos-1", 100, 0.5)
	bus.PublishBotStopped("BTC")

	got := waitEvent(t, typed)
	if got.Type != EventTradeOpened || got.Data["position_id"] != "pos-1" {
		t.Errorf("unexpected typed event %+v", got)
	}
	if got.ID == "" || got.Timestamp.IsZero() {
		t.Errorf("id and timestamp should be filled in: %+v", got)
	}

	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		seen[waitEvent(t, all).Type] = true
	}
	if !seen[EventTradeOpened] || !seen[EventBotStopped] {
		t.Errorf("all-subscriber missed events: %v", seen)
	}

	select {
	case e := <-typed:
		t.Errorf("typed subscriber received unrelated event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishErrorIncludesCause(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { ch <- e })

	bus.PublishError("ledger", "save failed", errTest("db down"))
	got := waitEvent(t, ch)
	if got.Data["error"] != "db down" || got.Data["source"] != "ledger" {
		t.Errorf("unexpected error event %+v", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
