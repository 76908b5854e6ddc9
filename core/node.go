package core

import (
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"
)

// Configuration holds the construction-time settings of a node.
type Configuration map[string]any

// DecodeConfig decodes cfg into out, a pointer to a struct with json tags.
// Numeric and boolean values are converted weakly, so JSON numbers decode
// into integer fields.
func DecodeConfig(cfg Configuration, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(cfg)); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	return nil
}

// Node is the common surface of every graph node.
type Node interface {
	// ID returns the node identifier, stable within a graph instance.
	ID() string

	// Description returns the static metadata of the node's type.
	Description() Description

	// Type returns the variant tag.
	Type() NodeType

	// Inputs returns the ordered input sockets.
	Inputs() []*Socket

	// Outputs returns the ordered output sockets.
	Outputs() []*Socket

	// Configuration returns the construction-time settings.
	Configuration() Configuration
}

// FunctionNode is a pure node recomputed whenever one of its outputs is pulled.
// Exec reads inputs and writes outputs. It must be idempotent.
type FunctionNode interface {
	Node
	Exec() error
}

// FlowNode is a synchronous node triggered through one of its flow inputs.
type FlowNode interface {
	Node
	Triggered(f Fiber, socket string) error
}

// EventNode starts flow in response to an external source.
// Init is called once per graph lifetime; Dispose must be safe without Init.
type EventNode interface {
	Node
	Init(e Engine) error
	Dispose() error
}

// AsyncNode suspends across real time. Triggered returns without committing;
// the node later calls Engine.CommitToNewFiber and then finished exactly once.
type AsyncNode interface {
	Node
	Triggered(e Engine, socket string, finished func()) error
	Dispose() error
}

// BaseNode implements Node and the socket helpers shared by node types.
type BaseNode struct {
	id      string
	desc    Description
	typ     NodeType
	inputs  []*Socket
	outputs []*Socket
	config  Configuration
}

// NewBaseNode creates the common part of a node.
func NewBaseNode(id string, desc Description, typ NodeType, inputs, outputs []*Socket, cfg Configuration) BaseNode {
	if cfg == nil {
		cfg = Configuration{}
	}
	return BaseNode{
		id:      id,
		desc:    desc,
		typ:     typ,
		inputs:  inputs,
		outputs: outputs,
		config:  cfg,
	}
}

func (n *BaseNode) ID() string                   { return n.id }
func (n *BaseNode) Description() Description     { return n.desc }
func (n *BaseNode) Type() NodeType               { return n.typ }
func (n *BaseNode) Inputs() []*Socket            { return n.inputs }
func (n *BaseNode) Outputs() []*Socket           { return n.outputs }
func (n *BaseNode) Configuration() Configuration { return n.config }

// Write sets the value of a data output.
func (n *BaseNode) Write(name string, v any) error {
	return WriteOutput(n, name, v)
}

// ReadInput returns the live value of a data input converted to T.
// Integer values convert to float64 and integral floats convert to int64.
func ReadInput[T any](n Node, name string) (T, error) {
	var zero T
	s, err := FindSocket(n.Inputs(), name)
	if err != nil {
		return zero, fmt.Errorf("node %s: %w", n.ID(), err)
	}
	if s.IsFlow() {
		return zero, fmt.Errorf("node %s: %w: %q is a flow socket", n.ID(), ErrSocketType, name)
	}
	v, ok := convert[T](s.Value)
	if !ok {
		return zero, fmt.Errorf("node %s: %w: %q holds %T, want %T", n.ID(), ErrSocketType, name, s.Value, zero)
	}
	return v, nil
}

// WriteOutput sets the value of a data output.
func WriteOutput(n Node, name string, v any) error {
	s, err := FindSocket(n.Outputs(), name)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID(), err)
	}
	if s.IsFlow() {
		return fmt.Errorf("node %s: %w: %q is a flow socket", n.ID(), ErrSocketType, name)
	}
	s.Value = v
	return nil
}

func convert[T any](v any) (T, bool) {
	var zero T
	if v == nil {
		return zero, true
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	switch any(zero).(type) {
	case float64:
		switch x := v.(type) {
		case int64:
			return any(float64(x)).(T), true
		case int:
			return any(float64(x)).(T), true
		case float32:
			return any(float64(x)).(T), true
		}
	case int64:
		switch x := v.(type) {
		case int:
			return any(int64(x)).(T), true
		case float64:
			if x == math.Trunc(x) {
				return any(int64(x)).(T), true
			}
		}
	}
	return zero, false
}

// ValidateNode checks that the node's variant tag matches the interface it
// implements and that its sockets have the shape the variant requires.
func ValidateNode(n Node) error {
	var flowIn, flowOut int
	for _, s := range n.Inputs() {
		if s.IsFlow() {
			flowIn++
		}
	}
	for _, s := range n.Outputs() {
		if s.IsFlow() {
			flowOut++
		}
	}

	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s (%s): %s", ErrInvalidNode, n.ID(), n.Description().TypeName, fmt.Sprintf(format, args...))
	}

	switch n.Type() {
	case NodeTypeFunction:
		if _, ok := n.(FunctionNode); !ok {
			return fail("function node does not implement Exec")
		}
		if flowIn > 0 || flowOut > 0 {
			return fail("function node has flow sockets")
		}
	case NodeTypeFlow:
		if _, ok := n.(FlowNode); !ok {
			return fail("flow node does not implement Triggered")
		}
		if flowIn == 0 {
			return fail("flow node has no flow input")
		}
	case NodeTypeEvent:
		if _, ok := n.(EventNode); !ok {
			return fail("event node does not implement Init and Dispose")
		}
		if flowIn > 0 {
			return fail("event node has flow inputs")
		}
		if flowOut == 0 {
			return fail("event node has no flow output")
		}
	case NodeTypeAsync:
		if _, ok := n.(AsyncNode); !ok {
			return fail("async node does not implement Triggered and Dispose")
		}
		if flowIn == 0 || flowOut == 0 {
			return fail("async node needs flow inputs and outputs")
		}
	default:
		return fail("unknown node type %q", n.Type())
	}
	return nil
}
