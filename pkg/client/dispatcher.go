package client

import (
	"sync"

	"go.uber.org/zap"
)

// Handler processes one dispatched event.
type Handler func(env *Envelope)

// Subscription is a handle to a registered handler. Components keep the
// handle and call Remove on teardown.
type Subscription struct {
	dispatcher *Dispatcher
	eventType  EventType
	id         uint64
}

// Remove unregisters the handler. Safe to call more than once.
func (s *Subscription) Remove() {
	if s == nil || s.dispatcher == nil {
		return
	}
	s.dispatcher.remove(s.eventType, s.id)
	s.dispatcher = nil
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Dispatcher routes events to registered handlers. Handlers for an event type
// run in registration order on the delivering goroutine; a panicking handler
// is recovered and logged and later handlers still run.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[EventType][]handlerEntry
	nextID   uint64
	log      *zap.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[EventType][]handlerEntry),
		log:      log,
	}
}

// On registers a handler for an event type and returns its subscription handle.
func (d *Dispatcher) On(eventType EventType, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[eventType] = append(d.handlers[eventType], handlerEntry{id: id, fn: fn})

	return &Subscription{dispatcher: d, eventType: eventType, id: id}
}

// OffAll removes every handler for an event type.
func (d *Dispatcher) OffAll(eventType EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, eventType)
}

// HandlerCount returns the number of handlers registered for an event type.
func (d *Dispatcher) HandlerCount(eventType EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[eventType])
}

func (d *Dispatcher) remove(eventType EventType, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.handlers[eventType]
	for i, e := range entries {
		if e.id == id {
			d.handlers[eventType] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(d.handlers[eventType]) == 0 {
		delete(d.handlers, eventType)
	}
}

// Dispatch delivers an event to every handler registered for its type,
// in registration order.
func (d *Dispatcher) Dispatch(env *Envelope) {
	d.mu.Lock()
	entries := make([]handlerEntry, len(d.handlers[env.Type]))
	copy(entries, d.handlers[env.Type])
	d.mu.Unlock()

	for _, e := range entries {
		d.invoke(e.fn, env)
	}
}

func (d *Dispatcher) invoke(fn Handler, env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked",
				zap.String("type", string(env.Type)),
				zap.Any("panic", r))
		}
	}()
	fn(env)
}
