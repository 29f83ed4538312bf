package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

// EventDataChanged is the only event the weather sensor emits.
const EventDataChanged = "on_data_changed"

// Sink receives event payloads for one listener. A returned error is
// reported back to whoever dispatched the event.
type Sink func(ctx context.Context, payload map[string]any) error

// Listener is a registered (event name, sink) pair.
type Listener struct {
	ID    string
	Event string

	sink    Sink
	channel *EventChannel
	once    sync.Once
}

// Cancel removes the listener from its channel. Safe to call more than once.
func (l *Listener) Cancel() {
	l.once.Do(func() { l.channel.remove(l) })
}

// EventChannel fans events out to listeners registered by name.
type EventChannel struct {
	metrics *observability.Metrics

	mu        sync.RWMutex
	listeners map[string][]*Listener
}

// NewEventChannel creates an empty EventChannel.
func NewEventChannel(metrics *observability.Metrics) *EventChannel {
	return &EventChannel{
		metrics:   metrics,
		listeners: make(map[string][]*Listener),
	}
}

// Listen registers sink for events named event. Listeners only see events
// dispatched after registration.
func (c *EventChannel) Listen(event string, sink Sink) *Listener {
	l := &Listener{
		ID:      uuid.NewString(),
		Event:   event,
		sink:    sink,
		channel: c,
	}

	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], l)
	n := len(c.listeners[event])
	c.mu.Unlock()

	c.metrics.ActiveListeners.WithLabelValues(event).Set(float64(n))
	return l
}

// ListenerCount returns the number of listeners registered for event.
func (c *EventChannel) ListenerCount(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[event])
}

// Dispatch delivers payload to every listener of event in registration
// order. Each sink runs synchronously on the caller's goroutine. A failing
// sink does not stop delivery to the rest; all errors are joined and
// returned.
func (c *EventChannel) Dispatch(ctx context.Context, event string, payload map[string]any) error {
	c.mu.RLock()
	targets := make([]*Listener, len(c.listeners[event]))
	copy(targets, c.listeners[event])
	c.mu.RUnlock()

	c.metrics.EventsDispatched.WithLabelValues(event).Inc()

	var errs []error
	for _, l := range targets {
		if err := l.sink(ctx, payload); err != nil {
			c.metrics.SinkDeliveries.WithLabelValues(event, "error").Inc()
			errs = append(errs, fmt.Errorf("listener %s: %w", l.ID, err))
			continue
		}
		c.metrics.SinkDeliveries.WithLabelValues(event, "success").Inc()
	}
	return errors.Join(errs...)
}

// OnDataChanged implements domain.Observer by dispatching the flattened
// snapshot as an on_data_changed event.
func (c *EventChannel) OnDataChanged(ctx context.Context, data domain.WeatherData) error {
	return c.Dispatch(ctx, EventDataChanged, data.ToMap())
}

// Close drops every listener.
func (c *EventChannel) Close() {
	c.mu.Lock()
	events := make([]string, 0, len(c.listeners))
	for event := range c.listeners {
		events = append(events, event)
	}
	c.listeners = make(map[string][]*Listener)
	c.mu.Unlock()

	for _, event := range events {
		c.metrics.ActiveListeners.WithLabelValues(event).Set(0)
	}
}

func (c *EventChannel) remove(target *Listener) {
	c.mu.Lock()
	list := c.listeners[target.Event]
	if i := slices.Index(list, target); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(c.listeners, target.Event)
	} else {
		c.listeners[target.Event] = list
	}
	n := len(list)
	c.mu.Unlock()

	c.metrics.ActiveListeners.WithLabelValues(target.Event).Set(float64(n))
}
