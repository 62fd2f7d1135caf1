// Package eventbus provides the in-process bus runtime components use to
// address each other by component id.
//
// Events are delivered synchronously to the listeners mounted at publish time.
// An event nobody listens to is dropped; delivery is at most once.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event is a message addressed to a topic
type Event interface {
	Topic() string
}

// SubmitForm asks the form with the given component id to submit itself
type SubmitForm struct {
	FormID string
}

// Topic implements Event
func (e SubmitForm) Topic() string { return SubmitFormTopic(e.FormID) }

// RefreshTable asks the table with the given component id to reload its rows
type RefreshTable struct {
	TableID string
}

// Topic implements Event
func (e RefreshTable) Topic() string { return RefreshTableTopic(e.TableID) }

// SubmitFormTopic returns the topic a form listens on
func SubmitFormTopic(formID string) string { return "form:submit:" + formID }

// RefreshTableTopic returns the topic a table listens on
func RefreshTableTopic(tableID string) string { return "table:refresh:" + tableID }

// Handler processes an event
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, evt Event) error

// HandleEvent implements Handler
func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus routes events to the handlers subscribed to their topic
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]subscription
	nextID uint64
	logger *zap.Logger
}

// New creates an empty bus
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for topic and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, topic)
		return
	}
	b.topics[topic] = subs
}

// Publish delivers evt to every handler subscribed to its topic and returns
// how many handlers received it. Handler errors are logged, never returned.
func (b *Bus) Publish(ctx context.Context, evt Event) int {
	topic := evt.Topic()

	b.mu.RLock()
	subs := append([]subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("eventbus: no listener, dropping event", zap.String("topic", topic))
		return 0
	}

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.logger.Warn("eventbus: handler error",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
	return len(subs)
}

// Listeners returns the number of handlers subscribed to topic
func (b *Bus) Listeners(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
