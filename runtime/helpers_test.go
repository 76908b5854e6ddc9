package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/behaveflow/core"
)

// flowNode is a flow node whose behavior is supplied by the test.
type flowNode struct {
	core.BaseNode
	onTrigger func(f core.Fiber, socket string) error
}

func (n *flowNode) Triggered(f core.Fiber, socket string) error {
	if n.onTrigger == nil {
		return nil
	}
	return n.onTrigger(f, socket)
}

func newFlowNode(id string, inputs, outputs []*core.Socket, onTrigger func(f core.Fiber, socket string) error) *flowNode {
	n := &flowNode{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/flow"}, core.NodeTypeFlow, inputs, outputs, nil),
	}
	n.onTrigger = onTrigger
	return n
}

// eventNode exposes a Fire method standing in for an external source.
type eventNode struct {
	core.BaseNode
	engine   core.Engine
	inits    int
	disposed int
}

func newEventNode(id string) *eventNode {
	return &eventNode{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/event"}, core.NodeTypeEvent,
			nil, []*core.Socket{core.NewFlowSocket("flow")}, nil),
	}
}

func (n *eventNode) Init(e core.Engine) error {
	n.inits++
	n.engine = e
	return nil
}

func (n *eventNode) Dispose() error {
	n.disposed++
	return nil
}

func (n *eventNode) Fire() error {
	return n.engine.CommitToNewFiber(n, "flow", nil)
}

// addNode is a function node computing a + b.
type addNode struct {
	core.BaseNode
	execs int
}

func newAddNode(id string, a, b float64) *addNode {
	return &addNode{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/add"}, core.NodeTypeFunction,
			[]*core.Socket{
				core.NewSocket("float", "a").WithDefault(a),
				core.NewSocket("float", "b").WithDefault(b),
			},
			[]*core.Socket{core.NewSocket("float", "result").WithDefault(0.0)},
			nil),
	}
}

func (n *addNode) Exec() error {
	n.execs++
	a, err := core.ReadInput[float64](n, "a")
	if err != nil {
		return err
	}
	b, err := core.ReadInput[float64](n, "b")
	if err != nil {
		return err
	}
	return n.Write("result", a+b)
}

// timerNode is an async node that absorbs triggers while a timer is pending.
type timerNode struct {
	core.BaseNode
	delay time.Duration

	pending  bool
	gen      int
	stop     func() bool
	finishes int
	commits  int
	doubled  bool
}

func newTimerNode(id string, delay time.Duration) *timerNode {
	return &timerNode{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/timer"}, core.NodeTypeAsync,
			[]*core.Socket{core.NewFlowSocket("flow")},
			[]*core.Socket{core.NewFlowSocket("flow")},
			nil),
		delay: delay,
	}
}

func (n *timerNode) Triggered(e core.Engine, _ string, finished func()) error {
	if n.pending {
		return nil
	}
	n.pending = true
	gen := n.gen
	n.stop = e.AfterFunc(n.delay, func() {
		if !n.pending || gen != n.gen {
			return
		}
		n.pending = false
		n.commits++
		if err := e.CommitToNewFiber(n, "flow", nil); err != nil {
			return
		}
		n.finishes++
		finished()
		if n.doubled {
			finished()
		}
	})
	return nil
}

func (n *timerNode) Dispose() error {
	n.gen++
	n.pending = false
	if n.stop != nil {
		n.stop()
	}
	return nil
}

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind EventKind, nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (nodeID == "" || e.NodeID == nodeID) {
			n++
		}
	}
	return n
}

func connect(from core.Node, output string, to core.Node, input string) {
	out, err := core.FindSocket(from.Outputs(), output)
	if err != nil {
		panic(err)
	}
	in, err := core.FindSocket(to.Inputs(), input)
	if err != nil {
		panic(err)
	}
	link := core.Link{FromNodeID: from.ID(), FromSocket: output, ToNodeID: to.ID(), ToSocket: input}
	out.AddLink(link)
	in.AddLink(link)
}

func newTestEngine(t *testing.T, rec *recorder, nodes ...core.Node) *Engine {
	t.Helper()
	opts := DefaultEngineOptions()
	if rec != nil {
		opts.EventHandler = rec.handle
	}
	e, err := NewEngine(nodes, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Dispose() })
	if err := e.InitEventNodes(); err != nil {
		t.Fatalf("InitEventNodes() error = %v", err)
	}
	return e
}
