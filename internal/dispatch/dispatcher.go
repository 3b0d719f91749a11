package dispatch

import (
	"log/slog"
	"sync"

	"github.com/trafficpulse/livemap/internal/domain"
)

// Listener is a registration handle. Removal goes through the handle so
// identical callback functions registered twice stay distinguishable.
type Listener struct {
	eventType domain.EventType
	fn        func(domain.InboundEvent)
}

// Dispatcher routes inbound events to listeners registered per event type.
// One dispatcher belongs to one session; nothing here is process-global.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[domain.EventType][]*Listener
	log       *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		listeners: make(map[domain.EventType][]*Listener),
		log:       log,
	}
}

// On registers fn for events of the given type, after any listeners already
// registered for it. The returned handle is the only way to unregister.
func (d *Dispatcher) On(t domain.EventType, fn func(domain.InboundEvent)) *Listener {
	l := &Listener{eventType: t, fn: fn}

	d.mu.Lock()
	d.listeners[t] = append(d.listeners[t], l)
	d.mu.Unlock()

	return l
}

// Off removes a previously registered listener. Removing a handle that is
// not registered (or already removed) is a no-op.
func (d *Dispatcher) Off(l *Listener) {
	if l == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.listeners[l.eventType]
	for i, cur := range list {
		if cur == l {
			d.listeners[l.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every listener currently registered for the event's type,
// in registration order. A panicking listener is logged and skipped; it never
// stops the remaining listeners or reaches the caller. Types with no
// listeners dispatch to no one.
func (d *Dispatcher) Dispatch(ev domain.InboundEvent) {
	d.mu.RLock()
	list := d.listeners[ev.Type]
	snapshot := make([]*Listener, len(list))
	copy(snapshot, list)
	d.mu.RUnlock()

	for _, l := range snapshot {
		d.invoke(l, ev)
	}
}

func (d *Dispatcher) invoke(l *Listener, ev domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("listener panic recovered", "event_type", ev.Type, "panic", r)
		}
	}()
	l.fn(ev)
}

// Len reports the number of listeners registered for a type.
func (d *Dispatcher) Len(t domain.EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[t])
}
