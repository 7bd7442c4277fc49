// Package realtime fans typed events out to subscribed clients over SSE.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
)

// EventBus implements out.RealtimePort with per-user channel fan-out.
// Emission never blocks: a full subscriber buffer drops the event.
type EventBus struct {
	mu      sync.RWMutex
	clients map[string]map[chan *domain.Event]struct{} // userID -> channels
	log     zerolog.Logger

	sent    int64
	dropped int64
	seq     int64
}

// NewEventBus creates the bus.
func NewEventBus(log zerolog.Logger) *EventBus {
	return &EventBus{
		clients: make(map[string]map[chan *domain.Event]struct{}),
		log:     log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe creates a buffered subscription channel for a user.
func (b *EventBus) Subscribe(userID string) <-chan *domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *domain.Event, 256)
	if b.clients[userID] == nil {
		b.clients[userID] = make(map[chan *domain.Event]struct{})
	}
	b.clients[userID][ch] = struct{}{}

	b.log.Debug().
		Str("user_id", userID).
		Int("connections", len(b.clients[userID])).
		Msg("client subscribed")
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *EventBus) Unsubscribe(userID string, ch <-chan *domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if channels, ok := b.clients[userID]; ok {
		for c := range channels {
			if c == ch {
				delete(channels, c)
				close(c)
				break
			}
		}
		if len(channels) == 0 {
			delete(b.clients, userID)
		}
	}
}

// Publish delivers an event to every subscriber of the user. Failed delivery
// to one subscriber never affects the others.
func (b *EventBus) Publish(ctx context.Context, userID string, event *domain.Event) error {
	event.Seq = atomic.AddInt64(&b.seq, 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.UserID = userID

	// hold the read lock across the sends: they are non-blocking, and the
	// lock keeps Unsubscribe from closing a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients[userID] {
		select {
		case ch <- event:
			atomic.AddInt64(&b.sent, 1)
		default:
			atomic.AddInt64(&b.dropped, 1)
			b.log.Warn().
				Str("user_id", userID).
				Str("event_type", string(event.Type)).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// ConnectedCount returns the number of users with live subscriptions.
func (b *EventBus) ConnectedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// SerializeEvent renders an event for the SSE wire.
func SerializeEvent(event *domain.Event) ([]byte, error) {
	payload := map[string]interface{}{
		"type":      event.Type,
		"data":      event.Data,
		"seq":       event.Seq,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

var _ out.RealtimePort = (*EventBus)(nil)
