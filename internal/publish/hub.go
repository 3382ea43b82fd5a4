// Package publish fans pipeline views out to subscribers.
package publish

import (
	"sync"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

// Hub keeps the latest view and broadcasts new ones
type Hub struct {
	mu        sync.RWMutex
	latest    model.View
	has       bool
	listeners []chan model.View
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{}
}

// Publish stores v as the latest view and offers it to every listener.
// Listeners whose buffer is full skip this view; every view carries the
// full state so the next one catches them up.
func (h *Hub) Publish(v model.View) {
	h.mu.Lock()
	h.latest = v
	h.has = true
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, listener := range h.listeners {
		select {
		case listener <- v:
		default:
			// Skip if channel is full
		}
	}
}

// Latest returns the most recently published view
func (h *Hub) Latest() (model.View, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.has
}

// Subscribe adds a listener for new views
func (h *Hub) Subscribe() chan model.View {
	ch := make(chan model.View, 10)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (h *Hub) Unsubscribe(ch chan model.View) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Subscribers returns the number of active listeners
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
