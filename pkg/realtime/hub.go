package realtime

import (
	"context"
	"sync"
	"time"
)

// Hub is an in-process pub/sub used by websocket subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	buffer      int
}

// NewHub creates a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subscribers: make(map[string][]chan Event), buffer: buffer}
}

// Subscribe registers a channel for topic. Call the returned func to release it.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subscribers[topic] = append(h.subscribers[topic], ch)
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(topic, ch) })
	}
}

func (h *Hub) unsubscribe(topic string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish delivers without blocking; slow subscribers drop events.
func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	if event.Topic == "" {
		event.Topic = topic
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of listeners on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
