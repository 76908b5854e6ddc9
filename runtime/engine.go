package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/behaveflow/core"
)

// EngineOptions controls engine behavior.
type EngineOptions struct {
	// RunID identifies the engine in emitted events. Generated when empty.
	RunID string

	// Logger receives engine diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// StepLimit bounds the execution steps of a single ExecuteAllSync call
	// (0 = unlimited). Fibers cut short stay queued for the next call.
	StepLimit int

	// EventHandler receives events during execution.
	EventHandler EventHandler

	// EventEmitterDecorator wraps the internal event emitter.
	// If nil, events are emitted without decoration.
	EventEmitterDecorator EventEmitterDecorator

	// EventBus distributes events to subscribers.
	// If nil, events are only sent to EventHandler.
	EventBus EventPublisher
}

// DefaultEngineOptions returns sensible default options.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		StepLimit: 100_000_000,
	}
}

// Engine owns a node table and schedules the fibers walking it.
//
// Only the goroutine calling ExecuteAllSync or ExecuteAllAsync steps fibers
// and touches node state. Other goroutines reach the engine through Post,
// AfterFunc and CommitToNewFiber.
type Engine struct {
	id        string
	nodes     map[string]core.Node
	order     []core.Node
	logger    *slog.Logger
	now       func() time.Time
	stepLimit int
	emit      EventEmitter

	steps atomic.Int64

	mu       sync.Mutex
	fibers   []*Fiber
	inbox    []func()
	pending  map[string]struct{}
	disposed bool
	wake     chan struct{}

	initOnce sync.Once
	initErr  error
}

var _ core.Engine = (*Engine)(nil)

// NewEngine creates an engine over the given nodes. Every node must satisfy
// core.ValidateNode and ids must be unique.
func NewEngine(nodes []core.Node, opts EngineOptions) (*Engine, error) {
	e := &Engine{
		id:        opts.RunID,
		nodes:     make(map[string]core.Node, len(nodes)),
		logger:    opts.Logger,
		now:       opts.Now,
		stepLimit: opts.StepLimit,
		pending:   make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}

	for _, n := range nodes {
		if _, exists := e.nodes[n.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
		}
		if err := core.ValidateNode(n); err != nil {
			return nil, err
		}
		e.nodes[n.ID()] = n
		e.order = append(e.order, n)
	}

	seq := &seqGen{}
	emit := func(ev Event) {
		ev.Seq = seq.Next()
		if opts.EventHandler != nil {
			opts.EventHandler(ev)
		}
		if opts.EventBus != nil {
			opts.EventBus.Publish(ev)
		}
	}
	if opts.EventEmitterDecorator != nil {
		emit = opts.EventEmitterDecorator(emit)
	}
	e.emit = emit

	return e, nil
}

// ID returns the engine run identifier.
func (e *Engine) ID() string {
	return e.id
}

// Node returns the node with the given id.
func (e *Engine) Node(id string) (core.Node, bool) {
	n, ok := e.nodes[id]
	return n, ok
}

// Nodes returns the nodes in construction order.
func (e *Engine) Nodes() []core.Node {
	return append([]core.Node(nil), e.order...)
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ExecutionSteps returns the total number of steps executed so far.
func (e *Engine) ExecutionSteps() int {
	return int(e.steps.Load())
}

// QueuedFibers returns the number of fibers waiting to run.
func (e *Engine) QueuedFibers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fibers)
}

// PendingAsync returns the ids of async nodes that have not finished yet.
func (e *Engine) PendingAsync() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Disposed reports whether Dispose has been called.
func (e *Engine) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Post schedules fn to run on the driving goroutine during the next drain.
// Calls after Dispose are dropped.
func (e *Engine) Post(fn func()) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.inbox = append(e.inbox, fn)
	e.mu.Unlock()
	e.signal()
}

// AfterFunc posts fn once d has elapsed.
func (e *Engine) AfterFunc(d time.Duration, fn func()) (stop func() bool) {
	t := time.AfterFunc(d, func() { e.Post(fn) })
	return t.Stop
}

// CommitToNewFiber queues a new fiber seeded with the link behind the named
// flow output of node. A continuation is run once that link has unwound,
// even when the output is not connected.
func (e *Engine) CommitToNewFiber(node core.Node, output string, cont core.Continuation) error {
	if e.Disposed() {
		return ErrEngineDisposed
	}
	switch node.Type() {
	case core.NodeTypeFlow, core.NodeTypeEvent, core.NodeTypeAsync:
	default:
		return e.fail(node, "", fmt.Errorf("%w: %s node", ErrNotFlowNode, node.Type()))
	}

	sock, err := core.FindSocket(node.Outputs(), output)
	if err != nil {
		return e.fail(node, "", err)
	}
	if !sock.IsFlow() {
		return e.fail(node, "", fmt.Errorf("%w: %q is not a flow output", core.ErrSocketType, output))
	}
	if len(sock.Links) > 1 {
		return e.fail(node, "", fmt.Errorf("%w: %s.%s has %d downlinks",
			ErrMultipleDownlinks, node.Description().TypeName, output, len(sock.Links)))
	}

	f := newFiber(e)
	if len(sock.Links) == 1 {
		link := sock.Links[0]
		f.nextEval = &link
	}
	if cont != nil {
		f.push(node.ID(), cont)
	}
	if f.IsCompleted() {
		return nil
	}

	e.mu.Lock()
	e.fibers = append(e.fibers, f)
	e.mu.Unlock()
	e.signal()
	return nil
}

// InitEventNodes calls Init on every event node. Only the first call has
// any effect.
func (e *Engine) InitEventNodes() error {
	e.initOnce.Do(func() {
		var errs []error
		count := 0
		for _, n := range e.order {
			en, ok := n.(core.EventNode)
			if !ok {
				continue
			}
			count++
			if err := en.Init(e); err != nil {
				errs = append(errs, e.fail(n, "", err))
			}
		}
		e.initErr = errors.Join(errs...)
		e.emit(e.event(EventEngineInitialized).WithPayload("event_nodes", count))
	})
	return e.initErr
}

// ExecuteAllSync drains posted callbacks and runs queued fibers to
// completion until the queue is empty or the step limit is spent. It
// returns the number of steps executed. A failing fiber is dropped and its
// error joined into the result; other fibers keep running.
func (e *Engine) ExecuteAllSync() (int, error) {
	start := e.steps.Load()
	e.clearWake()

	var errs []error
	for {
		e.drainInbox()
		f := e.headFiber()
		if f == nil {
			break
		}
		done, err := e.runFiber(f, start)
		if err != nil {
			errs = append(errs, err)
		}
		if !done {
			break
		}
	}
	return int(e.steps.Load() - start), errors.Join(errs...)
}

// ExecuteAllAsync repeats ExecuteAllSync until no fibers, callbacks or
// async nodes are outstanding, maxPasses passes have run (0 = unlimited),
// or ctx is done. Between passes it blocks until new work is posted.
// Running out of passes is not an error; outstanding async nodes stay
// pending for a later call.
func (e *Engine) ExecuteAllAsync(ctx context.Context, maxPasses int) (int, error) {
	var (
		total int
		errs  []error
	)
	for pass := 1; ; pass++ {
		n, err := e.ExecuteAllSync()
		total += n
		if err != nil {
			errs = append(errs, err)
		}

		// Signals raised during the pass announced work that has already
		// run. Anything posted from here on re-arms the token.
		e.clearWake()
		queued, pending := e.outstanding()
		if queued == 0 && pending == 0 {
			break
		}
		if maxPasses > 0 && pass >= maxPasses {
			e.logger.Debug("pass limit reached with work outstanding",
				"run_id", e.id,
				"passes", pass,
				"queued", queued,
				"pending_async", pending,
			)
			break
		}
		if queued > 0 {
			continue
		}

		select {
		case <-e.wake:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return total, errors.Join(errs...)
		}
	}
	return total, errors.Join(errs...)
}

// WaitForWork blocks until a fiber is committed, a callback is posted or
// an async node finishes, or until ctx is done. Hosts whose pulses arrive
// from other goroutines call it between drains.
func (e *Engine) WaitForWork(ctx context.Context) error {
	if queued, _ := e.outstanding(); queued > 0 {
		return nil
	}
	select {
	case <-e.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose calls Dispose on every event and async node, drops queued work
// and refuses further commits. It is safe to call more than once.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	e.fibers = nil
	e.inbox = nil
	clear(e.pending)
	e.mu.Unlock()

	var errs []error
	for _, n := range e.order {
		var err error
		switch dn := n.(type) {
		case core.EventNode:
			err = dn.Dispose()
		case core.AsyncNode:
			err = dn.Dispose()
		default:
			continue
		}
		if err != nil {
			errs = append(errs, e.fail(n, "", err))
		}
	}

	e.emit(e.event(EventEngineDisposed).WithPayload("steps", e.ExecutionSteps()))
	e.signal()
	return errors.Join(errs...)
}

// runFiber steps f until it completes, fails or the step budget measured
// from budgetStart is spent. It reports false only when the budget ran out.
func (e *Engine) runFiber(f *Fiber, budgetStart int64) (bool, error) {
	if f.startedAt.IsZero() {
		f.startedAt = e.now()
		e.emit(e.event(EventFiberStarted).WithFiber(f.id))
	}

	for !f.IsCompleted() {
		if e.stepLimit > 0 && e.steps.Load()-budgetStart >= int64(e.stepLimit) {
			return false, nil
		}
		if err := f.ExecuteStep(); err != nil {
			e.removeFiber(f)
			e.emit(e.event(EventFiberFailed).
				WithFiber(f.id).
				WithElapsed(e.now().Sub(f.startedAt)).
				WithPayload("steps", f.steps).
				WithPayload("error", err.Error()))
			return true, err
		}
	}

	e.removeFiber(f)
	e.emit(e.event(EventFiberCompleted).
		WithFiber(f.id).
		WithElapsed(e.now().Sub(f.startedAt)).
		WithPayload("steps", f.steps))
	return true, nil
}

// fail reports err once, tagged with node, and returns it as a *NodeError.
// Errors that already carry a node are returned unchanged.
func (e *Engine) fail(n core.Node, fiberID string, err error) error {
	var nerr *NodeError
	if errors.As(err, &nerr) {
		return err
	}
	nerr = newNodeError(n, err)
	e.logger.Error("node execution failed",
		"run_id", e.id,
		"fiber_id", fiberID,
		"node_id", n.ID(),
		"type", n.Description().TypeName,
		"error", err,
	)
	e.emit(e.event(EventNodeFailed).
		WithNode(n).
		WithFiber(fiberID).
		WithPayload("error", err.Error()))
	return nerr
}

// finisher returns the completion callback handed to an async node for one
// trigger. A second call is reported and otherwise ignored.
func (e *Engine) finisher(n core.AsyncNode, fiberID string, started time.Time) func() {
	var called atomic.Bool
	return func() {
		if called.Swap(true) {
			_ = e.fail(n, fiberID, ErrFinishedTwice)
			return
		}
		e.mu.Lock()
		delete(e.pending, n.ID())
		e.mu.Unlock()

		e.steps.Add(1)
		e.emit(e.event(EventNodeFinished).
			WithNode(n).
			WithFiber(fiberID).
			WithElapsed(e.now().Sub(started)))
		e.signal()
	}
}

func (e *Engine) addPending(n core.AsyncNode, fiberID string) {
	e.mu.Lock()
	e.pending[n.ID()] = struct{}{}
	e.mu.Unlock()
	e.emit(e.event(EventAsyncPending).WithNode(n).WithFiber(fiberID))
}

func (e *Engine) removePending(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Engine) event(kind EventKind) Event {
	return NewEvent(kind, e.id).WithTime(e.now())
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) clearWake() {
	select {
	case <-e.wake:
	default:
	}
}

func (e *Engine) drainInbox() {
	for {
		e.mu.Lock()
		batch := e.inbox
		e.inbox = nil
		e.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

func (e *Engine) headFiber() *Fiber {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fibers) == 0 {
		return nil
	}
	return e.fibers[0]
}

func (e *Engine) removeFiber(f *Fiber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.fibers {
		if q == f {
			e.fibers = append(e.fibers[:i], e.fibers[i+1:]...)
			return
		}
	}
}

func (e *Engine) outstanding() (queued, pending int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fibers) + len(e.inbox), len(e.pending)
}
