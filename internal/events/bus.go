package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventTradeRejected   EventType = "TRADE_REJECTED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventPriceUpdate     EventType = "PRICE_UPDATE"
	EventPositionUpdate  EventType = "POSITION_UPDATE"
	EventBalanceUpdate   EventType = "BALANCE_UPDATE"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventSymbolSwitched  EventType = "SYMBOL_SWITCHED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
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
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
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

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer never blocks the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishBotStarted publishes a bot started event
func (eb *EventBus) PublishBotStarted(symbol string) {
	eb.Publish(Event{
		Type: EventBotStarted,
		Data: map[string]interface{}{"symbol": symbol},
	})
}

// PublishBotStopped publishes a bot stopped event
func (eb *EventBus) PublishBotStopped(symbol string) {
	eb.Publish(Event{
		Type: EventBotStopped,
		Data: map[string]interface{}{"symbol": symbol},
	})
}

// PublishSymbolSwitched publishes a symbol switch
func (eb *EventBus) PublishSymbolSwitched(from, to string) {
	eb.Publish(Event{
		Type: EventSymbolSwitched,
		Data: map[string]interface{}{"from": from, "to": to},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(strategyName, symbol, signalType string, confidence, price float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"strategy":    strategyName,
			"symbol":      symbol,
			"signal_type": signalType,
			"confidence":  confidence,
			"price":       price,
		},
	})
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, positionID string, entryPrice, quantity float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"position_id": positionID,
			"side":        "BUY",
			"entry_price": entryPrice,
			"quantity":    quantity,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, positionID, reason string, entryPrice, exitPrice, quantity, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"position_id": positionID,
			"reason":      reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"quantity":    quantity,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishTradeRejected publishes a trade that was decided but not executed
func (eb *EventBus) PublishTradeRejected(symbol, side, reason string) {
	eb.Publish(Event{
		Type: EventTradeRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"reason": reason,
		},
	})
}

// PublishPriceUpdate publishes a price update event
func (eb *EventBus) PublishPriceUpdate(symbol string, price float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		},
	})
}

// PublishPositionUpdate publishes a position update event
func (eb *EventBus) PublishPositionUpdate(symbol string, entryPrice, currentPrice, highestPrice, quantity, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventPositionUpdate,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"entry_price":   entryPrice,
			"current_price": currentPrice,
			"highest_price": highestPrice,
			"quantity":      quantity,
			"pnl":           pnl,
			"pnl_percent":   pnlPercent,
		},
	})
}

// PublishBalanceUpdate publishes a balance change
func (eb *EventBus) PublishBalanceUpdate(balance float64) {
	eb.Publish(Event{
		Type: EventBalanceUpdate,
		Data: map[string]interface{}{"balance": balance},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
