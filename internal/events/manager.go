package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Event is a single occurrence on the bus.
type Event struct {
	Type      Type
	Timestamp time.Time
	Module    string
	Data      map[string]interface{}
}

// Listener receives events it has subscribed to. A Listener must not block
// for long: the bus invokes listeners synchronously and fire-and-forget,
// and any panic inside a listener is recovered and swallowed rather than
// propagated to the publisher.
type Listener func(Event)

// Bus is a minimal synchronous pub-sub dispatcher.
type Bus struct {
	mu        chan struct{} // acts as a mutex via buffered channel of size 1
	listeners map[Type][]Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	b := &Bus{mu: make(chan struct{}, 1), listeners: make(map[Type][]Listener)}
	b.mu <- struct{}{}
	return b
}

func (b *Bus) lock()   { <-b.mu }
func (b *Bus) unlock() { b.mu <- struct{}{} }

// Subscribe registers listener for eventType and returns an unsubscribe
// function, mirroring C3's Subscribe(listener) -> unsubscribe contract.
func (b *Bus) Subscribe(eventType Type, listener Listener) (unsubscribe func()) {
	b.lock()
	id := len(b.listeners[eventType])
	b.listeners[eventType] = append(b.listeners[eventType], listener)
	b.unlock()

	return func() {
		b.lock()
		defer b.unlock()
		ls := b.listeners[eventType]
		if id < len(ls) {
			ls[id] = nil
		}
	}
}

// Emit dispatches an event to all current listeners of ev.Type, swallowing
// any panic a listener raises so one bad subscriber cannot break emission
// for the rest.
func (b *Bus) Emit(ev Event) {
	b.lock()
	ls := append([]Listener(nil), b.listeners[ev.Type]...)
	b.unlock()

	for _, l := range ls {
		if l == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			l(ev)
		}()
	}
}

// Manager emits events onto a Bus and logs each one.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a Manager backed by bus.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{bus: bus, log: log.With().Str("component", "events").Logger()}
}

// Subscribe registers listener for eventType on the underlying bus.
func (m *Manager) Subscribe(eventType Type, listener Listener) (unsubscribe func()) {
	return m.bus.Subscribe(eventType, listener)
}

// Emit publishes an event and logs it.
func (m *Manager) Emit(eventType Type, module string, data map[string]interface{}) {
	ev := Event{Type: eventType, Timestamp: time.Now(), Module: module, Data: data}
	m.bus.Emit(ev)
	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Interface("data", data).
		Msg("event emitted")
}
