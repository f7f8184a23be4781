// Package events provides the in-process event bus. Training loops publish
// progress, the ingestion layer publishes provenance transitions, and the
// websocket stream handler subscribes to forward events to dashboards.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	TrainingStarted   EventType = "TRAINING_STARTED"
	TrainingProgress  EventType = "TRAINING_PROGRESS"
	TrainingCompleted EventType = "TRAINING_COMPLETED"
	PredictionServed  EventType = "PREDICTION_SERVED"
	FetchCompleted    EventType = "FETCH_COMPLETED"
	SnapshotCreated   EventType = "SNAPSHOT_CREATED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives published events. Handlers must not block; slow consumers
// should buffer on their own channel.
type Handler func(*Event)

// Bus handles event publication and subscription.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish emits an event to all subscribed handlers.
func (b *Bus) Publish(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("handlers", len(handlers)).
		Msg("Event published")
}

// PublishError emits an error event.
func (b *Bus) PublishError(module string, err error, context map[string]interface{}) {
	b.Publish(ErrorOccurred, module, map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	})
}
