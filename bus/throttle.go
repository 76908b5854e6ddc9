package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/petal-labs/behaveflow/runtime"
)

// DefaultCoalescedKinds are the per-step events a tick-driven graph emits
// at high frequency.
var DefaultCoalescedKinds = []runtime.EventKind{
	runtime.EventFiberStarted,
	runtime.EventFiberCompleted,
	runtime.EventNodeStarted,
	runtime.EventNodeFinished,
}

// ThrottleConfig controls the behavior of ThrottledEmitter.
type ThrottleConfig struct {
	// CoalesceInterval is how often coalesced events are flushed.
	// Default: 100ms
	CoalesceInterval time.Duration

	// Kinds are the event kinds to coalesce. Default: DefaultCoalescedKinds.
	Kinds []runtime.EventKind
}

type coalesceKey struct {
	kind   runtime.EventKind
	nodeID string
}

// ThrottledEmitter wraps an emitter and coalesces high-frequency events.
// Within each interval only the latest event per kind and node is kept;
// its payload carries "coalesced" with the number of events it replaces.
// Other kinds pass through immediately.
type ThrottledEmitter struct {
	emit     runtime.EventEmitter
	interval time.Duration
	kinds    map[runtime.EventKind]bool

	mu      sync.Mutex
	pending map[coalesceKey]runtime.Event
	counts  map[coalesceKey]int
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledEmitter starts a ThrottledEmitter in front of emit.
func NewThrottledEmitter(emit runtime.EventEmitter, cfg ThrottleConfig) *ThrottledEmitter {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = DefaultCoalescedKinds
	}

	te := &ThrottledEmitter{
		emit:     emit,
		interval: interval,
		kinds:    make(map[runtime.EventKind]bool, len(kinds)),
		pending:  make(map[coalesceKey]runtime.Event),
		counts:   make(map[coalesceKey]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, k := range kinds {
		te.kinds[k] = true
	}

	go te.run()
	return te
}

// Emit forwards or coalesces e.
func (te *ThrottledEmitter) Emit(e runtime.Event) {
	if !te.kinds[e.Kind] {
		te.emit(e)
		return
	}

	te.mu.Lock()
	defer te.mu.Unlock()
	if te.closed {
		return
	}
	key := coalesceKey{kind: e.Kind, nodeID: e.NodeID}
	te.pending[key] = e
	te.counts[key]++
}

// Handler returns Emit as a runtime.EventHandler.
func (te *ThrottledEmitter) Handler() runtime.EventHandler {
	return te.Emit
}

// Close flushes pending events and stops the background ticker.
// It is safe to call Close multiple times.
func (te *ThrottledEmitter) Close() {
	te.mu.Lock()
	if te.closed {
		te.mu.Unlock()
		return
	}
	te.closed = true
	te.mu.Unlock()

	close(te.stopCh)
	<-te.doneCh
}

func (te *ThrottledEmitter) run() {
	defer close(te.doneCh)

	ticker := time.NewTicker(te.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			te.flush()
		case <-te.stopCh:
			te.flush()
			return
		}
	}
}

// flush emits pending events in sequence order, outside the lock.
func (te *ThrottledEmitter) flush() {
	te.mu.Lock()
	if len(te.pending) == 0 {
		te.mu.Unlock()
		return
	}
	out := make([]runtime.Event, 0, len(te.pending))
	for key, e := range te.pending {
		payload := make(map[string]any, len(e.Payload)+1)
		for k, v := range e.Payload {
			payload[k] = v
		}
		payload["coalesced"] = te.counts[key]
		e.Payload = payload
		out = append(out, e)
	}
	te.pending = make(map[coalesceKey]runtime.Event)
	te.counts = make(map[coalesceKey]int)
	te.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	for _, e := range out {
		te.emit(e)
	}
}

