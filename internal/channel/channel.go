// Package channel carries hot-update notifications from the coordinator to pages.
//
// Delivery is fire and forget: a subscriber that cannot keep up loses messages.
// That is safe because an update only tells the page to fetch the newest
// stylesheet again, so missing or repeated messages converge on the same state.
package channel

import (
	"errors"
	"log/slog"
	"sync"
)

// Message kinds on the wire.
const (
	TypeUpdate = "globalcss:update"
	TypeError  = "globalcss:error"
)

// ErrChannelUnavailable means no live-reload transport is reachable.
var ErrChannelUnavailable = errors.New("live reload channel unavailable")

// Message is one notification.
type Message struct {
	Type    string `json:"type"`
	Version int64  `json:"version,omitempty"` // version token of the published build
	Error   string `json:"error,omitempty"`   // compiler diagnostic for TypeError
}

// Update returns an update notification carrying version.
func Update(version int64) Message {
	return Message{Type: TypeUpdate, Version: version}
}

// Failure returns an error notification describing err.
func Failure(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

// Publisher sends notifications to every connected page.
type Publisher interface {
	Publish(msg Message)
}

const subscriberBuffer = 16

// Hub fans messages out to subscribers. It is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[chan Message]struct{}), logger: logger}
}

// Publish implements Publisher. It never blocks.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("publishing message", "type", msg.Type, "version", msg.Version, "subscribers", len(h.subs))
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("subscriber is not keeping up, dropping message", "type", msg.Type)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be called
// to release it; it closes the channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Close releases every subscriber, which ends their websocket connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
