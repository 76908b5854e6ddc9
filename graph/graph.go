// Package graph reads, builds, validates and writes behavior graphs.
package graph

import (
	"errors"
	"fmt"

	"github.com/petal-labs/behaveflow/core"
)

// Graph errors
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateNode = errors.New("duplicate node id")
)

// NodeInfo carries editor data that does not affect execution.
type NodeInfo struct {
	Label    string
	Metadata map[string]any
}

// Graph is a set of nodes with their links wired on both endpoints.
type Graph struct {
	name  string
	nodes []core.Node
	byID  map[string]core.Node
	info  map[string]NodeInfo
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name: name,
		byID: make(map[string]core.Node),
		info: make(map[string]NodeInfo),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// SetName renames the graph.
func (g *Graph) SetName(name string) {
	g.name = name
}

// Add appends a node. Ids must be unique.
func (g *Graph) Add(n core.Node) error {
	if _, exists := g.byID[n.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}
	g.nodes = append(g.nodes, n)
	g.byID[n.ID()] = n
	return nil
}

// SetInfo attaches editor data to a node.
func (g *Graph) SetInfo(id string, info NodeInfo) {
	g.info[id] = info
}

// Info returns the editor data of a node.
func (g *Graph) Info(id string) NodeInfo {
	return g.info[id]
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (core.Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []core.Node {
	return append([]core.Node(nil), g.nodes...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Connect links output fromSocket of node fromID to input toSocket of node
// toID. The link is recorded on both sockets.
func (g *Graph) Connect(fromID, fromSocket, toID, toSocket string) error {
	from, ok := g.byID[fromID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, fromID)
	}
	to, ok := g.byID[toID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, toID)
	}
	out, err := core.FindSocket(from.Outputs(), fromSocket)
	if err != nil {
		return fmt.Errorf("output of %s: %w", fromID, err)
	}
	in, err := core.FindSocket(to.Inputs(), toSocket)
	if err != nil {
		return fmt.Errorf("input of %s: %w", toID, err)
	}
	if !compatible(out.ValueTypeName, in.ValueTypeName) {
		return fmt.Errorf("%w: %s.%s (%s) -> %s.%s (%s)", core.ErrSocketType,
			fromID, fromSocket, out.ValueTypeName, toID, toSocket, in.ValueTypeName)
	}

	link := core.Link{FromNodeID: fromID, FromSocket: fromSocket, ToNodeID: toID, ToSocket: toSocket}
	out.AddLink(link)
	in.AddLink(link)
	return nil
}

// compatible reports whether an output of type from may feed an input of
// type to. Integers widen to floats.
func compatible(from, to string) bool {
	return from == to || (from == "integer" && to == "float")
}
