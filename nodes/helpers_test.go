package nodes

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/lifecycle"
	"github.com/petal-labs/behaveflow/registry"
	"github.com/petal-labs/behaveflow/runtime"
)

// journal records probe activity in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) count(s string) int {
	n := 0
	for _, e := range j.list() {
		if e == s {
			n++
		}
	}
	return n
}

// probe is a flow node that records its id and passes flow through.
// Its optional "value" input is captured on every trigger.
type probe struct {
	core.BaseNode
	log    *journal
	values []any
}

func newProbe(id string, log *journal) *probe {
	return &probe{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/probe"}, core.NodeTypeFlow,
			[]*core.Socket{core.NewFlowSocket("flow"), core.NewSocket("integer", "value")},
			[]*core.Socket{core.NewFlowSocket("flow")},
			nil),
		log: log,
	}
}

func (p *probe) Triggered(f core.Fiber, _ string) error {
	p.log.add(p.ID())
	in, _ := core.FindSocket(p.Inputs(), "value")
	if in.IsLinked() {
		p.values = append(p.values, in.Value)
	}
	return f.Commit(p, "flow", nil)
}

// source is an event node fired directly by tests.
type source struct {
	core.BaseNode
	engine core.Engine
}

func newSource(id string) *source {
	return &source{
		BaseNode: core.NewBaseNode(id, core.Description{TypeName: "test/source"}, core.NodeTypeEvent,
			nil, []*core.Socket{core.NewFlowSocket("flow")}, nil),
	}
}

func (s *source) Init(e core.Engine) error {
	s.engine = e
	return nil
}

func (s *source) Dispose() error { return nil }

func (s *source) fire(t *testing.T) {
	t.Helper()
	if err := s.engine.CommitToNewFiber(s, "flow", nil); err != nil {
		t.Fatalf("fire %s: %v", s.ID(), err)
	}
}

// mapService is an in-memory core.StateService.
type mapService struct {
	data map[string][]byte
}

func (m *mapService) GetState(id string) ([]byte, bool) {
	b, ok := m.data[id]
	return b, ok
}

func (m *mapService) SetState(id string, data []byte) {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[id] = data
}

type harness struct {
	t       *testing.T
	reg     *registry.Registry
	deps    registry.Dependencies
	emitter *lifecycle.ManualEmitter
	nodes   []core.Node
	log     *journal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := registry.New()
	RegisterCoreProfile(reg)
	emitter := lifecycle.NewManualEmitter()
	return &harness{
		t:   t,
		reg: reg,
		deps: registry.Dependencies{
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			Lifecycle: emitter,
		},
		emitter: emitter,
		log:     &journal{},
	}
}

func (h *harness) create(typeName, id string, cfg core.Configuration) core.Node {
	h.t.Helper()
	n, err := h.reg.Create(h.deps, typeName, id, cfg)
	if err != nil {
		h.t.Fatalf("Create(%s) error = %v", typeName, err)
	}
	h.nodes = append(h.nodes, n)
	return n
}

func (h *harness) probe(id string) *probe {
	p := newProbe(id, h.log)
	h.nodes = append(h.nodes, p)
	return p
}

func (h *harness) source(id string) *source {
	s := newSource(id)
	h.nodes = append(h.nodes, s)
	return s
}

func (h *harness) engine(opts runtime.EngineOptions) *runtime.Engine {
	h.t.Helper()
	if opts.Logger == nil {
		opts.Logger = h.deps.Logger
	}
	e, err := runtime.NewEngine(h.nodes, opts)
	if err != nil {
		h.t.Fatalf("NewEngine() error = %v", err)
	}
	h.t.Cleanup(func() { _ = e.Dispose() })
	if err := e.InitEventNodes(); err != nil {
		h.t.Fatalf("InitEventNodes() error = %v", err)
	}
	return e
}

func connect(t *testing.T, from core.Node, output string, to core.Node, input string) {
	t.Helper()
	out, err := core.FindSocket(from.Outputs(), output)
	if err != nil {
		t.Fatal(err)
	}
	in, err := core.FindSocket(to.Inputs(), input)
	if err != nil {
		t.Fatal(err)
	}
	link := core.Link{FromNodeID: from.ID(), FromSocket: output, ToNodeID: to.ID(), ToSocket: input}
	out.AddLink(link)
	in.AddLink(link)
}

func setInput(t *testing.T, n core.Node, name string, v any) {
	t.Helper()
	s, err := core.FindSocket(n.Inputs(), name)
	if err != nil {
		t.Fatal(err)
	}
	s.Value = v
}

func output(t *testing.T, n core.Node, name string) any {
	t.Helper()
	s, err := core.FindSocket(n.Outputs(), name)
	if err != nil {
		t.Fatal(err)
	}
	return s.Value
}

func runSync(t *testing.T, e *runtime.Engine) {
	t.Helper()
	if _, err := e.ExecuteAllSync(); err != nil {
		t.Fatalf("ExecuteAllSync() error = %v", err)
	}
}

func runAsync(t *testing.T, e *runtime.Engine, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := e.ExecuteAllAsync(ctx, 0); err != nil {
		t.Fatalf("ExecuteAllAsync() error = %v", err)
	}
}
