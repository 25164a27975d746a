package mediaview

import (
	"fmt"
	"slices"
	"sync"
)

// EventType names an outward notification of an Element.
type EventType string

const (
	EventPlay          EventType = "play"
	EventPause         EventType = "pause"
	EventLoop          EventType = "loop"
	EventEnd           EventType = "end"
	EventMetadataReady EventType = "metadata-ready"
	EventTimeUpdate    EventType = "time-update"
	EventSourceChanged EventType = "source-changed"
	EventError         EventType = "error"
)

// EventTypes lists every event type an Element emits.
var EventTypes = []EventType{
	EventPlay, EventPause, EventLoop, EventEnd,
	EventMetadataReady, EventTimeUpdate, EventSourceChanged, EventError,
}

// Event identifies the emitting element. State is read through the
// Element's accessors; only EventError carries a payload.
type Event struct {
	Type      EventType
	ElementID string
	Err       error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Type, e.ElementID, e.Err)
	}
	return fmt.Sprintf("%s(%s)", e.Type, e.ElementID)
}

// AcquisitionError reports a failed camera acquisition. The previously
// active resource is left in place and nothing is retried.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return "camera acquisition failed: " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// LoadError reports a file or image that could not be bound or decoded.
type LoadError struct {
	Kind ResourceKind
	Ref  string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %q: %v", e.Kind, e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type listenerSet struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]func(Event)
}

func (l *listenerSet) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listeners == nil {
		l.listeners = make(map[uint64]func(Event))
	}
	id := l.next
	l.next++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *listenerSet) deliver(ev Event) {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	// Registration order.
	slices.Sort(ids)
	for _, id := range ids {
		l.mu.RLock()
		fn := l.listeners[id]
		l.mu.RUnlock()
		if fn != nil {
			fn(ev)
		}
	}
}
