package runtime

import (
	"fmt"

	"github.com/petal-labs/behaveflow/core"
)

// resolveInputs pulls fresh values into every data input of n.
func (f *Fiber) resolveInputs(n core.Node) error {
	for _, in := range n.Inputs() {
		if in.IsFlow() {
			continue
		}
		if err := f.resolveSocketValue(in, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolveSocketValue copies the value of the output linked to in. When the
// source is a function node its own inputs are resolved and it is executed
// first, at a cost of one step. Unlinked inputs keep their held value.
func (f *Fiber) resolveSocketValue(in *core.Socket, visiting map[string]bool) error {
	if len(in.Links) == 0 {
		return nil
	}
	link := in.Links[0]

	src, ok := f.engine.nodes[link.FromNodeID]
	if !ok {
		return fmt.Errorf("%w: %s (link %s)", ErrNodeNotFound, link.FromNodeID, link)
	}

	if fn, ok := src.(core.FunctionNode); ok {
		if visiting[src.ID()] {
			return f.engine.fail(src, f.id, fmt.Errorf("%w: through %s", ErrFunctionCycle, src.ID()))
		}
		if visiting == nil {
			visiting = make(map[string]bool)
		}
		visiting[src.ID()] = true

		for _, upstream := range src.Inputs() {
			if err := f.resolveSocketValue(upstream, visiting); err != nil {
				return err
			}
		}
		if err := f.exec(fn); err != nil {
			return err
		}
		delete(visiting, src.ID())
	}

	out, err := core.FindSocket(src.Outputs(), link.FromSocket)
	if err != nil {
		return f.engine.fail(src, f.id, err)
	}
	in.Value = out.Value
	return nil
}

func (f *Fiber) exec(fn core.FunctionNode) error {
	started := f.engine.now()
	f.engine.emit(f.engine.event(EventNodeStarted).WithNode(fn).WithFiber(f.id))
	if err := fn.Exec(); err != nil {
		return f.engine.fail(fn, f.id, err)
	}
	f.count(1)
	f.engine.emit(f.engine.event(EventNodeFinished).
		WithNode(fn).
		WithFiber(f.id).
		WithElapsed(f.engine.now().Sub(started)))
	return nil
}
