package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Event names a point in an owner's lifecycle.
type Event string

const (
	// Persisted fires after a record is created, updated or upserted.
	Persisted Event = "persisted"
	// Removed fires after a record is deleted.
	Removed Event = "removed"
)

// Listener reacts to an event. instance is nil when the event applies to
// every record of the type, e.g. after a criteria based delete.
type Listener func(ctx context.Context, instance any) error

// Dispatcher routes events to the listeners registered for a type.
// *T and T share a scope.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[reflect.Type]map[Event][]Listener
}

// NewDispatcher creates a dispatcher with no listeners.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[reflect.Type]map[Event][]Listener),
	}
}

// TypeOf returns the scope type of v.
func TypeOf(v any) reflect.Type {
	return baseType(reflect.TypeOf(v))
}

// Listen registers fn for event on records of type t.
func (d *Dispatcher) Listen(t reflect.Type, event Event, fn Listener) {
	t = baseType(t)

	d.mu.Lock()
	defer d.mu.Unlock()

	byEvent, ok := d.listeners[t]
	if !ok {
		byEvent = make(map[Event][]Listener)
		d.listeners[t] = byEvent
	}
	byEvent[event] = append(byEvent[event], fn)
}

// HasListeners reports whether anything listens for event on type t.
func (d *Dispatcher) HasListeners(t reflect.Type, event Event) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[baseType(t)][event]) > 0
}

// Fire runs the listeners registered for event on the type of instance.
// Every listener runs; their errors are joined.
func (d *Dispatcher) Fire(ctx context.Context, event Event, instance any) error {
	if instance == nil {
		return nil
	}
	return d.dispatch(ctx, event, TypeOf(instance), instance)
}

// FireType runs the listeners registered for event on type t with a nil
// instance.
func (d *Dispatcher) FireType(ctx context.Context, event Event, t reflect.Type) error {
	return d.dispatch(ctx, event, baseType(t), nil)
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event, t reflect.Type, instance any) error {
	if d == nil || IsQuiet(ctx) {
		return nil
	}

	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners[t][event]...)
	d.mu.RUnlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, instance); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("lifecycle: %s on %s: %w", event, t, errors.Join(errs...))
	}
	return nil
}

func baseType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
