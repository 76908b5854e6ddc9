package prom

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/runtime"
)

type fakeEngine struct {
	queued  int
	pending []string
	steps   int
}

func (f *fakeEngine) QueuedFibers() int      { return f.queued }
func (f *fakeEngine) PendingAsync() []string { return f.pending }
func (f *fakeEngine) ExecutionSteps() int    { return f.steps }

func nodeEvent(kind runtime.EventKind, typeName string) runtime.Event {
	e := runtime.NewEvent(kind, "run-1").WithElapsed(time.Millisecond)
	e.NodeType = core.NodeTypeFlow
	e.TypeName = typeName
	return e
}

func TestCollector_Events(t *testing.T) {
	c := NewCollector("behaveflow")

	c.Handle(nodeEvent(runtime.EventNodeFinished, "debug/log"))
	c.Handle(nodeEvent(runtime.EventNodeFinished, "debug/log"))
	c.Handle(nodeEvent(runtime.EventNodeFinished, "flow/branch"))
	c.Handle(nodeEvent(runtime.EventNodeFailed, "flow/branch"))
	c.Handle(runtime.NewEvent(runtime.EventFiberCompleted, "run-1"))
	c.Handle(runtime.NewEvent(runtime.EventFiberFailed, "run-1"))

	if got := testutil.ToFloat64(c.nodeTriggers.WithLabelValues("debug/log")); got != 2 {
		t.Errorf("debug/log triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.nodeFailures.WithLabelValues("flow/branch")); got != 1 {
		t.Errorf("flow/branch failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fibers.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed fibers = %v", got)
	}
	if n := testutil.CollectAndCount(c.nodeDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestCollector_GaugesSampleEngine(t *testing.T) {
	c := NewCollector("behaveflow")
	summary, err := c.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if summary["behaveflow_queued_fibers"] != 0 {
		t.Errorf("queued without engine = %v", summary["behaveflow_queued_fibers"])
	}

	c.Observe(&fakeEngine{queued: 2, pending: []string{"delay"}, steps: 40})
	summary, err = c.Summary()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"behaveflow_queued_fibers":         2,
		"behaveflow_pending_async_nodes":   1,
		"behaveflow_execution_steps_total": 40,
	}
	for name, v := range want {
		if summary[name] != v {
			t.Errorf("%s = %v, want %v", name, summary[name], v)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("behaveflow")
	c.Handle(nodeEvent(runtime.EventNodeFinished, "time/delay"))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `behaveflow_node_triggers_total{type="time/delay"} 1`) {
		t.Errorf("exposition missing trigger counter:\n%s", body)
	}
}
