package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventTradeOpened, func(e Event) {
		received <- e
	})

	bus.Publish(EventTradeOpened, map[string]interface{}{"product": "BTC-USD"})

	select {
	case event := <-received:
		if event.Type != EventTradeOpened {
			t.Errorf("type = %s", event.Type)
		}
		if event.Data["product"] != "BTC-USD" {
			t.Errorf("data = %v", event.Data)
		}
		if event.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never called")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventTradeOpened, func(e Event) {
		received <- e
	})

	bus.Publish(EventTradeClosed, nil)

	select {
	case <-received:
		t.Fatal("subscriber called for wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	received := make(chan EventType, 2)

	bus.SubscribeAll(func(e Event) {
		received <- e.Type
	})

	bus.Publish(EventBotStarted, nil)
	bus.Publish(EventCircuitTripped, nil)

	seen := make(map[EventType]bool)
	for i := 0; i < 2; i++ {
		select {
		case eventType := <-received:
			seen[eventType] = true
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	if !seen[EventBotStarted] || !seen[EventCircuitTripped] {
		t.Errorf("seen = %v", seen)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewEventBus()
	release := make(chan struct{})

	bus.Subscribe(EventPriceUpdate, func(e Event) {
		<-release
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventPriceUpdate, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	close(release)
}
