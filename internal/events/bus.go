package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventModeChanged     EventType = "MODE_CHANGED"
	EventCapitalChanged  EventType = "CAPITAL_CHANGED"
	EventStrategyToggled EventType = "STRATEGY_TOGGLED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderCancelled  EventType = "ORDER_CANCELLED"
	EventPortfolioUpdate EventType = "PORTFOLIO_UPDATE"
	EventPriceUpdate     EventType = "PRICE_UPDATE"
	EventEmergencyStop   EventType = "EMERGENCY_STOP"
	EventCircuitTripped  EventType = "CIRCUIT_TRIPPED"
	EventCircuitReset    EventType = "CIRCUIT_RESET"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all matching subscribers. Delivery is
// asynchronous; a slow subscriber never blocks the publisher.
func (eb *EventBus) Publish(eventType EventType, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	eb.mu.RLock()
	subs := make([]Subscriber, 0, len(eb.subscribers[eventType])+len(eb.allSubs))
	subs = append(subs, eb.subscribers[eventType]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	for _, sub := range subs {
		go sub(event)
	}
}
