package app

import (
	"sync"

	"quiz-participation-service/internal/domain"
)

// AttemptHub fans attempt events out to live subscribers (one attempt may be open
// in several tabs). It holds no attempt state; the store stays the source of truth.
type AttemptHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.AttemptEvent]struct{}
	forwarder   EventForwarder
}

// EventForwarder relays locally published events to other instances.
type EventForwarder interface {
	Forward(ev domain.AttemptEvent)
}

func NewAttemptHub() *AttemptHub {
	return &AttemptHub{
		subscribers: make(map[string]map[chan domain.AttemptEvent]struct{}),
	}
}

// Subscribe returns a channel that receives events for one attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *AttemptHub) Subscribe(attemptID string) (<-chan domain.AttemptEvent, func()) {
	ch := make(chan domain.AttemptEvent, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[attemptID]
	if !ok {
		subs = make(map[chan domain.AttemptEvent]struct{})
		h.subscribers[attemptID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[attemptID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, attemptID)
		}
	}
	return ch, cancel
}

// SetForwarder installs f; events passed to Publish are handed to it after local delivery.
func (h *AttemptHub) SetForwarder(f EventForwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Publish delivers ev locally and forwards it to other instances.
func (h *AttemptHub) Publish(ev domain.AttemptEvent) {
	h.Deliver(ev)
	h.mu.Lock()
	f := h.forwarder
	h.mu.Unlock()
	if f != nil {
		f.Forward(ev)
	}
}

// Deliver hands ev to every local subscriber of its attempt. A full subscriber buffer
// loses its oldest event so a slow client never blocks the publisher.
func (h *AttemptHub) Deliver(ev domain.AttemptEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[ev.AttemptID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports how many live subscribers an attempt has.
func (h *AttemptHub) Subscribers(attemptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[attemptID])
}
