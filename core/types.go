// Package core provides the foundational types and interfaces for behavior graphs.
//
// This package contains:
//   - Core types: NodeType, Link, Socket, Description, Configuration
//   - Interfaces: Node and its four variants, Fiber, Engine, StateService
//   - Typed per-node state: State[S]
package core

import (
	"errors"
	"fmt"
	"time"
)

// Core errors
var (
	ErrSocketNotFound = errors.New("socket not found")
	ErrSocketType     = errors.New("socket value type mismatch")
	ErrInvalidNode    = errors.New("invalid node")
)

// NodeType is the variant tag of a node. It is fixed at construction.
type NodeType string

const (
	NodeTypeFunction NodeType = "function"
	NodeTypeFlow     NodeType = "flow"
	NodeTypeEvent    NodeType = "event"
	NodeTypeAsync    NodeType = "async"
)

// String returns the string representation of the NodeType.
func (t NodeType) String() string {
	return string(t)
}

// Valid reports whether t is one of the four known variants.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeFunction, NodeTypeFlow, NodeTypeEvent, NodeTypeAsync:
		return true
	}
	return false
}

// FlowValueType is the reserved value type name for control sockets.
const FlowValueType = "flow"

// Link is a directed connection from an output socket to an input socket.
type Link struct {
	FromNodeID string `json:"fromNodeId"`
	FromSocket string `json:"fromSocket"`
	ToNodeID   string `json:"toNodeId"`
	ToSocket   string `json:"toSocket"`
}

func (l Link) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", l.FromNodeID, l.FromSocket, l.ToNodeID, l.ToSocket)
}

// Description carries the static metadata of a node type.
type Description struct {
	TypeName        string
	OtherTypeNames  []string
	Category        string
	Label           string
	HelpDescription string
}

// Continuation is resumed when a fiber returns to an empty evaluation slot.
type Continuation func() error

// Fiber is the execution unit a flow node commits its outbound link to.
type Fiber interface {
	// Commit designates the link behind the named flow output as the next
	// one to evaluate. The continuation, when non-nil, runs after everything
	// downstream of that link has unwound.
	Commit(node Node, output string, cont Continuation) error
}

// Engine is the scheduling surface visible to event and async nodes.
type Engine interface {
	// CommitToNewFiber seeds a new fiber at the named flow output of node.
	CommitToNewFiber(node Node, output string, cont Continuation) error

	// Post schedules fn to run on the goroutine driving the engine.
	// It is safe to call from any goroutine.
	Post(fn func())

	// AfterFunc posts fn once d has elapsed. The returned function stops
	// the timer and reports whether it did so before it fired.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)

	// Now returns the engine clock.
	Now() time.Time
}
