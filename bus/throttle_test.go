package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/behaveflow/runtime"
)

type recorder struct {
	mu     sync.Mutex
	events []runtime.Event
}

func (r *recorder) emit(e runtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []runtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runtime.Event(nil), r.events...)
}

func TestThrottle_PassThrough(t *testing.T) {
	rec := &recorder{}
	te := NewThrottledEmitter(rec.emit, ThrottleConfig{CoalesceInterval: time.Hour})
	defer te.Close()

	te.Emit(makeEvent("run-1", 1, runtime.EventNodeFailed, "a"))
	te.Emit(makeEvent("run-1", 2, runtime.EventAsyncPending, "b"))

	if got := rec.snapshot(); len(got) != 2 {
		t.Fatalf("expected 2 immediate events, got %d", len(got))
	}
}

func TestThrottle_CoalescesPerKindAndNode(t *testing.T) {
	rec := &recorder{}
	te := NewThrottledEmitter(rec.emit, ThrottleConfig{CoalesceInterval: time.Hour})

	for seq := uint64(1); seq <= 6; seq++ {
		te.Emit(makeEvent("run-1", seq, runtime.EventNodeStarted, "log"))
	}
	te.Emit(makeEvent("run-1", 7, runtime.EventNodeStarted, "counter"))
	te.Emit(makeEvent("run-1", 8, runtime.EventFiberCompleted, ""))

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("coalesced events leaked before flush: %d", len(got))
	}

	te.Close()
	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("flushed %d events, want 3", len(got))
	}
	if got[0].Seq != 6 || got[0].Payload["coalesced"] != 6 {
		t.Errorf("first flushed = seq %d payload %v", got[0].Seq, got[0].Payload)
	}
	if got[1].NodeID != "counter" || got[2].Kind != runtime.EventFiberCompleted {
		t.Errorf("flush order = %v, %v", got[1].NodeID, got[2].Kind)
	}
}

func TestThrottle_PeriodicFlush(t *testing.T) {
	rec := &recorder{}
	te := NewThrottledEmitter(rec.emit, ThrottleConfig{
		CoalesceInterval: 20 * time.Millisecond,
		Kinds:            []runtime.EventKind{runtime.EventNodeFinished},
	})
	defer te.Close()

	te.Emit(makeEvent("run-1", 1, runtime.EventNodeFinished, "a"))
	te.Emit(makeEvent("run-1", 2, runtime.EventNodeStarted, "a"))

	deadline := time.Now().Add(time.Second)
	for len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestThrottle_EmitAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	te := NewThrottledEmitter(rec.emit, ThrottleConfig{})
	te.Close()
	te.Close()

	te.Emit(makeEvent("run-1", 1, runtime.EventNodeStarted, "a"))
	time.Sleep(10 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("got %d events after close", len(got))
	}
}
