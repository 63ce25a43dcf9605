package telemetry

import (
	"sync"
	"time"
)

// #region event
// Event is one observation emitted by a component. Fields carries the numeric
// measurements attached to the operation (tension, coherence, counts).
type Event struct {
	Component string
	Op        string
	Subject   string
	Fields    map[string]float64
	At        time.Time
}

// Observer receives events synchronously on the emitting goroutine, possibly
// while the emitter holds its own locks. Observers must not call back into the
// component that emitted the event.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// #endregion event

// #region hub
// Hub fans events out to every subscribed observer in subscription order.
// A nil *Hub discards events, so components can hold one unconditionally.
type Hub struct {
	mu        sync.RWMutex
	observers []Observer
	now       func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{now: time.Now}
}

// Subscribe appends o to the observer list.
func (h *Hub) Subscribe(o Observer) {
	if h == nil || o == nil {
		return
	}
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

// Len reports the number of subscribed observers.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Notify stamps e and delivers it to each observer.
func (h *Hub) Notify(e Event) {
	if h == nil {
		return
	}
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.RLock()
	obs := h.observers
	h.mu.RUnlock()
	for _, o := range obs {
		o.Observe(e)
	}
}

// Emit is shorthand for Notify with a component, op, subject and fields.
func (h *Hub) Emit(component, op, subject string, fields map[string]float64) {
	h.Notify(Event{Component: component, Op: op, Subject: subject, Fields: fields})
}

// #endregion hub
