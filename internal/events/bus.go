package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ConfigAppliedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ConfigAppliedEvent:
		event.Publish(b.dispatcher, e)
	case ConfigFailedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case LogStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler whose parameter type selects the event.
// Unknown handler types get a no-op unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ConfigFailedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConfigAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel delivers events of type T to ch for select-loop consumers
// such as SSE handlers. Events that do not fit in ch are dropped and counted.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}

// Dropped returns how many events slow channel subscribers missed.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
