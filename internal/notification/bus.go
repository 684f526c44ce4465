// Package notification fans pipeline events out to interested parties. An
// in-process bus decouples producers (ingest, alerting) from consumers; an
// optional MQTT bridge forwards the same events to external dashboards.
package notification

import (
	"sync"
	"time"
)

// Event types published on the bus.
const (
	EventSensorUpdated = "sensor-updated"
	EventLeakDetected  = "leak-detected"
	EventAlertResolved = "alert-resolved"
	EventModelActive   = "model-activated"
)

// Event is one pipeline occurrence worth broadcasting.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber channel. A consumer that falls this
// far behind starts losing events rather than stalling ingestion.
const subscriberBuffer = 64

// Bus is a non-blocking fan-out event bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers the event to every subscriber. Delivery is best-effort:
// a full subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
}
