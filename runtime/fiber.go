package runtime

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/petal-labs/behaveflow/core"
)

// continuation is a boxed completion callback owned by the node that
// registered it.
type continuation struct {
	nodeID string
	fn     core.Continuation
}

// Fiber walks committed flow links one step at a time. It holds at most one
// pending link and a LIFO stack of continuations.
type Fiber struct {
	id        string
	engine    *Engine
	nextEval  *core.Link
	stack     []continuation
	steps     int
	startedAt time.Time
}

var _ core.Fiber = (*Fiber)(nil)

func newFiber(e *Engine) *Fiber {
	return &Fiber{
		id:     ulid.MustNew(ulid.Now(), rand.Reader).String(),
		engine: e,
	}
}

// ID returns the fiber identifier.
func (f *Fiber) ID() string {
	return f.id
}

// Steps returns the number of steps this fiber has executed.
func (f *Fiber) Steps() int {
	return f.steps
}

// Commit designates the link behind the named flow output of node as the
// next one to evaluate. All checks happen before the fiber is modified.
func (f *Fiber) Commit(node core.Node, output string, cont core.Continuation) error {
	if node.Type() != core.NodeTypeFlow {
		return f.engine.fail(node, f.id, fmt.Errorf("%w: %s node", ErrNotFlowNode, node.Type()))
	}
	if f.nextEval != nil {
		return f.engine.fail(node, f.id, fmt.Errorf("%w: %s", ErrLinkPending, f.nextEval))
	}

	sock, err := core.FindSocket(node.Outputs(), output)
	if err != nil {
		return f.engine.fail(node, f.id, err)
	}
	if !sock.IsFlow() {
		return f.engine.fail(node, f.id, fmt.Errorf("%w: %q is not a flow output", core.ErrSocketType, output))
	}
	if len(sock.Links) > 1 {
		return f.engine.fail(node, f.id, fmt.Errorf("%w: %s.%s has %d downlinks",
			ErrMultipleDownlinks, node.Description().TypeName, output, len(sock.Links)))
	}

	if len(sock.Links) == 1 {
		link := sock.Links[0]
		f.nextEval = &link
	}
	if cont != nil {
		f.push(node.ID(), cont)
	}
	return nil
}

// ExecuteStep performs one step: it triggers the node behind the pending
// link, or resumes the top continuation when no link is pending. It is a
// no-op on a completed fiber.
func (f *Fiber) ExecuteStep() error {
	link := f.nextEval
	f.nextEval = nil

	if link == nil {
		if len(f.stack) == 0 {
			return nil
		}
		top := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		return f.resume(top)
	}

	node, ok := f.engine.nodes[link.ToNodeID]
	if !ok {
		return fmt.Errorf("%w: %s (link %s)", ErrNodeNotFound, link.ToNodeID, link)
	}
	if err := f.resolveInputs(node); err != nil {
		return f.engine.fail(node, f.id, err)
	}

	started := f.engine.now()
	f.engine.emit(f.engine.event(EventNodeStarted).
		WithNode(node).
		WithFiber(f.id).
		WithSocket(link.ToSocket))

	switch n := node.(type) {
	case core.AsyncNode:
		f.engine.addPending(n, f.id)
		if err := n.Triggered(f.engine, link.ToSocket, f.engine.finisher(n, f.id, started)); err != nil {
			f.engine.removePending(n.ID())
			return f.engine.fail(n, f.id, err)
		}
		return nil
	case core.FlowNode:
		if err := n.Triggered(f, link.ToSocket); err != nil {
			return f.engine.fail(n, f.id, err)
		}
		f.count(1)
		f.engine.emit(f.engine.event(EventNodeFinished).
			WithNode(n).
			WithFiber(f.id).
			WithSocket(link.ToSocket).
			WithElapsed(f.engine.now().Sub(started)))
		return nil
	default:
		return f.engine.fail(node, f.id, fmt.Errorf("%w: %s", ErrUnreachableVariant, node.Type()))
	}
}

// IsCompleted reports whether the fiber has neither a pending link nor a
// continuation left.
func (f *Fiber) IsCompleted() bool {
	return f.nextEval == nil && len(f.stack) == 0
}

func (f *Fiber) push(nodeID string, fn core.Continuation) {
	f.stack = append(f.stack, continuation{nodeID: nodeID, fn: fn})
}

// resume re-resolves the inputs of the node that registered c, since time
// may have passed, then runs it. Failures are tagged with that node.
func (f *Fiber) resume(c continuation) error {
	node, ok := f.engine.nodes[c.nodeID]
	if !ok {
		return fmt.Errorf("%w: %s (continuation)", ErrNodeNotFound, c.nodeID)
	}
	if err := f.resolveInputs(node); err != nil {
		return f.engine.fail(node, f.id, err)
	}
	if err := c.fn(); err != nil {
		return f.engine.fail(node, f.id, err)
	}
	return nil
}

func (f *Fiber) count(n int) {
	f.steps += n
	f.engine.steps.Add(int64(n))
}
