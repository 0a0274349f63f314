package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler processes a single event payload. Handlers must be fast and must
// not block: the bus delivers events synchronously in publish order.
type Handler func(payload string)

// UnsubscribeFunc removes a subscription. Calling it more than once is safe.
type UnsubscribeFunc func()

// Bus routes named lifecycle events from the transfer engine to subscribed
// handlers. A misbehaving handler (panic on a malformed payload) is isolated:
// it stays registered and sibling handlers still run.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]Handler),
	}
}

// Subscribe registers h for the named event and returns a function that
// removes exactly this subscription.
func (b *Bus) Subscribe(name string, h Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	handlers, ok := b.subs[name]
	if !ok {
		handlers = make(map[uint64]Handler)
		b.subs[name] = handlers
	}
	handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[name]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, name)
			}
		}
	}
}

// Publish delivers payload to every handler subscribed to name. Delivery
// order between handlers of the same event is unspecified.
func (b *Bus) Publish(name, payload string) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[name]))
	for _, h := range b.subs[name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(name, payload, h)
	}
}

func (b *Bus) deliver(name, payload string, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": name,
				"panic": r,
			}).Error("Event handler panicked, event dropped")
		}
	}()
	h(payload)
}
