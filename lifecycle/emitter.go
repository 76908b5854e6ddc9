// Package lifecycle provides the host-driven pulses (start, tick, end) that
// event nodes subscribe to.
package lifecycle

import "sync"

// Pulse names one lifecycle firing.
type Pulse string

const (
	PulseStart Pulse = "start"
	PulseTick  Pulse = "tick"
	PulseEnd   Pulse = "end"
)

// String returns the string representation of the Pulse.
func (p Pulse) String() string {
	return string(p)
}

// Listener is called when a pulse fires.
type Listener func()

// Emitter lets event nodes subscribe to pulses.
type Emitter interface {
	// Subscribe registers fn for the pulse and returns a function that
	// removes it. Calling the returned function more than once is harmless.
	Subscribe(p Pulse, fn Listener) (unsubscribe func())
}

type subscription struct {
	id int
	fn Listener
}

// ManualEmitter is an Emitter fired explicitly by the host.
type ManualEmitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Pulse][]subscription
}

var _ Emitter = (*ManualEmitter)(nil)

// NewManualEmitter creates an emitter with no listeners.
func NewManualEmitter() *ManualEmitter {
	return &ManualEmitter{
		listeners: make(map[Pulse][]subscription),
	}
}

// Subscribe registers fn for the pulse.
func (m *ManualEmitter) Subscribe(p Pulse, fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[p] = append(m.listeners[p], subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.listeners[p]
		for i, s := range subs {
			if s.id == id {
				m.listeners[p] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Fire invokes every listener of the pulse in subscription order and
// returns how many were called. Listeners run on the calling goroutine.
func (m *ManualEmitter) Fire(p Pulse) int {
	m.mu.Lock()
	subs := append([]subscription(nil), m.listeners[p]...)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
	return len(subs)
}

// ListenerCount returns the number of listeners of the pulse.
func (m *ManualEmitter) ListenerCount(p Pulse) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[p])
}
