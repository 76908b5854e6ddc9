package runtime

import (
	"errors"
	"fmt"

	"github.com/petal-labs/behaveflow/core"
)

// Engine errors
var (
	ErrLinkPending        = errors.New("a link is already pending on this fiber")
	ErrMultipleDownlinks  = errors.New("flow output has multiple downstream links")
	ErrNotFlowNode        = errors.New("node cannot commit flow")
	ErrUnreachableVariant = errors.New("unhandled node variant")
	ErrNodeNotFound       = errors.New("node not found")
	ErrFunctionCycle      = errors.New("cycle between function nodes")
	ErrEngineDisposed     = errors.New("engine is disposed")
	ErrFinishedTwice      = errors.New("async node reported finished more than once")
	ErrDuplicateNode      = errors.New("duplicate node id")
)

// NodeError tags a failure with the node it originated from.
type NodeError struct {
	NodeID   string
	NodeType core.NodeType
	TypeName string
	Err      error
}

func newNodeError(n core.Node, err error) *NodeError {
	return &NodeError{
		NodeID:   n.ID(),
		NodeType: n.Type(),
		TypeName: n.Description().TypeName,
		Err:      err,
	}
}

// Error implements the error interface for NodeError.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.TypeName, e.Err)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *NodeError) Unwrap() error {
	return e.Err
}
