// Package events implements the link core's tagged telemetry tap: a
// fan-out of structured events, rendered to the stable ASCII line format
// documented for the HAMSTR wire/log contract at the observer boundary.
package events

import (
	"fmt"
	"sync"
)

// Category tags an Event the way the wire log format's bracketed prefix
// does.
type Category string

const (
	System   Category = "SYSTEM"
	Client   Category = "CLIENT"
	Session  Category = "SESSION"
	Packet   Category = "PACKET"
	Control  Category = "CONTROL"
	Progress Category = "PROGRESS"
	Warning  Category = "WARNING"
	Error    Category = "ERROR"
)

// Event is one tagged telemetry record.
type Event struct {
	Category Category
	Text     string
}

// Line renders e in the stable "[CATEGORY] text" format.
func (e Event) Line() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.Text)
}

// Observer receives events as they're emitted. Implementations must not
// block for long; slow observers should buffer internally.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Tap is the event fan-out: emitters call Emit, subscribers Subscribe, and
// every emitted event reaches every currently-subscribed observer.
// Subscribe/Unsubscribe are safe to call concurrently with Emit, guarded
// by a single mutex around the observer map.
type Tap struct {
	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
}

// NewTap returns an empty Tap.
func NewTap() *Tap {
	return &Tap{observers: make(map[int]Observer)}
}

// Subscribe registers obs and returns a handle usable with Unsubscribe.
func (t *Tap) Subscribe(obs Observer) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.observers[id] = obs
	return id
}

// Unsubscribe removes the observer registered under id.
func (t *Tap) Unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.observers, id)
}

// Emit sends e to every current subscriber.
func (t *Tap) Emit(e Event) {
	t.mu.Lock()
	obs := make([]Observer, 0, len(t.observers))
	for _, o := range t.observers {
		obs = append(obs, o)
	}
	t.mu.Unlock()
	for _, o := range obs {
		o.OnEvent(e)
	}
}

func (t *Tap) Emitf(cat Category, format string, args ...interface{}) {
	t.Emit(Event{Category: cat, Text: fmt.Sprintf(format, args...)})
}
