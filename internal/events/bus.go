// Package events is a minimal in-process pub/sub bus. Delivery is synchronous
// and best-effort: no persistence, no guarantee beyond "handlers registered at
// publish time are called".
package events

import "sync"

// Topics published by the pipeline and feedback processor
const (
	TopicPatternCreated    = "pattern.created"
	TopicIssueCreated      = "issue.created"
	TopicRunCompleted      = "run.completed"
	TopicFeedbackProcessed = "feedback.processed"
)

// Handler receives a published payload
type Handler func(payload interface{})

// Bus routes published payloads to subscribed handlers
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the payload to every handler of the topic, in
// subscription order, on the caller's goroutine
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
