package bus

import (
	"sync"
	"sync/atomic"

	"github.com/petal-labs/behaveflow/runtime"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 1024).
	SubscriberBufferSize int
}

// MemBus is an in-memory EventBus. Publish never blocks: a subscriber
// whose buffer is full misses the event and its drop counter grows.
type MemBus struct {
	mu      sync.RWMutex
	subs    map[*memSub]struct{}
	bufSize int
	closed  bool
}

// NewMemBus creates an in-memory event bus.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &MemBus{
		subs:    make(map[*memSub]struct{}),
		bufSize: bufSize,
	}
}

// Publish implements EventBus. Events published after Close are dropped.
func (b *MemBus) Publish(event runtime.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if sub.matches(event) {
			sub.send(event)
		}
	}
}

// Subscribe implements EventBus.
func (b *MemBus) Subscribe(runID string, kinds ...runtime.EventKind) Subscription {
	return b.add(runID, kinds)
}

// SubscribeAll implements EventBus.
func (b *MemBus) SubscribeAll(kinds ...runtime.EventKind) Subscription {
	return b.add("", kinds)
}

func (b *MemBus) add(runID string, kinds []runtime.EventKind) *memSub {
	sub := &memSub{
		bus:   b,
		runID: runID,
		ch:    make(chan runtime.Event, b.bufSize),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[runtime.EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *MemBus) remove(sub *memSub) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscribers returns the number of open subscriptions.
func (b *MemBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close implements EventBus.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.close()
	}
	b.subs = make(map[*memSub]struct{})
	return nil
}

type memSub struct {
	bus     *MemBus
	runID   string
	kinds   map[runtime.EventKind]bool
	ch      chan runtime.Event
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func (s *memSub) matches(e runtime.Event) bool {
	if s.runID != "" && s.runID != e.RunID {
		return false
	}
	return s.kinds == nil || s.kinds[e.Kind]
}

func (s *memSub) Events() <-chan runtime.Event { return s.ch }

func (s *memSub) Dropped() uint64 { return s.dropped.Load() }

func (s *memSub) Close() error {
	s.bus.remove(s)
	s.close()
	return nil
}

func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *memSub) send(event runtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		s.dropped.Add(1)
	}
}

var _ EventBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
var _ runtime.EventPublisher = (*MemBus)(nil)
