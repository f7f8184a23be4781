package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/agrilab/quantfarm/internal/events"
)

// streamedTypes are the event types forwarded to websocket clients.
var streamedTypes = []events.EventType{
	events.TrainingStarted,
	events.TrainingProgress,
	events.TrainingCompleted,
	events.PredictionServed,
	events.FetchCompleted,
	events.SnapshotCreated,
	events.ErrorOccurred,
}

// EventStreamHandler fans bus events out to websocket clients. Training
// progress is the main consumer: dashboards watch loss values arrive while an
// optimization runs.
type EventStreamHandler struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[chan *events.Event]struct{}
	closed  bool
}

// NewEventStreamHandler creates the handler and subscribes it to the bus.
func NewEventStreamHandler(bus *events.Bus, log zerolog.Logger) *EventStreamHandler {
	h := &EventStreamHandler{
		log:     log.With().Str("component", "event_stream").Logger(),
		clients: make(map[chan *events.Event]struct{}),
	}
	for _, t := range streamedTypes {
		bus.Subscribe(t, h.broadcast)
	}
	return h
}

// broadcast pushes an event to every connected client. Slow clients drop
// events rather than block the bus.
func (h *EventStreamHandler) broadcast(e *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// ServeHTTP upgrades to websocket and streams events until the client leaves.
// GET /api/events/stream
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := make(chan *events.Event, 64)
	if !h.register(ch) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(ch)

	h.log.Debug().Msg("Event stream client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := h.writeEvent(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func (h *EventStreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, e *events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *EventStreamHandler) register(ch chan *events.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[ch] = struct{}{}
	return true
}

func (h *EventStreamHandler) unregister(ch chan *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// Close stops accepting clients. Existing connections end when the HTTP
// server shuts down their request contexts.
func (h *EventStreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}
