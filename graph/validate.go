package graph

import (
	"fmt"
	"strings"

	"github.com/petal-labs/behaveflow/core"
)

// Validate checks a built graph:
//   - BG-003: links reference existing nodes
//   - BG-005: flow outputs have at most one link
//   - BG-006: data inputs have at most one link
//   - BG-007: node sockets match the node variant
//   - BG-008: function nodes do not depend on themselves
//   - BG-011: flow and async nodes can be reached (warning)
func Validate(g *Graph) []Diagnostic {
	var diags []Diagnostic

	for i, n := range g.nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if err := core.ValidateNode(n); err != nil {
			diags = append(diags, errorf(CodeNodeShape, path, err.Error()))
		}

		for _, out := range n.Outputs() {
			if out.IsFlow() && len(out.Links) > 1 {
				diags = append(diags, errorf(CodeMultipleDownlinks, path+".flows."+out.Name,
					fmt.Sprintf("Flow output %s.%s has %d links, at most one is allowed", n.ID(), out.Name, len(out.Links))))
			}
			diags = append(diags, danglingLinks(g, path, out)...)
		}

		flowLinked := false
		for _, in := range n.Inputs() {
			if in.IsFlow() {
				flowLinked = flowLinked || in.IsLinked()
			} else if len(in.Links) > 1 {
				diags = append(diags, errorf(CodeMultipleUplinks, path+".parameters."+in.Name,
					fmt.Sprintf("Input %s.%s has %d links, at most one is allowed", n.ID(), in.Name, len(in.Links))))
			}
			diags = append(diags, danglingLinks(g, path, in)...)
		}

		if (n.Type() == core.NodeTypeFlow || n.Type() == core.NodeTypeAsync) && !flowLinked {
			diags = append(diags, Diagnostic{
				Code:     CodeUnreachable,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Node %q has no linked flow input and will never run", n.ID()),
				Path:     path,
			})
		}
	}

	if cycle := functionCycle(g); len(cycle) > 0 {
		diags = append(diags, errorf(CodeFunctionCycle, "",
			fmt.Sprintf("Function nodes form a cycle: %s", strings.Join(cycle, " -> "))))
	}
	return diags
}

func danglingLinks(g *Graph, path string, s *core.Socket) []Diagnostic {
	var diags []Diagnostic
	for _, l := range s.Links {
		for _, id := range []string{l.FromNodeID, l.ToNodeID} {
			if _, ok := g.byID[id]; !ok {
				diags = append(diags, errorf(CodeDanglingLink, path,
					fmt.Sprintf("Link %s references unknown node %q", l, id)))
			}
		}
	}
	return diags
}

// functionCycle returns the ids along a cycle between function nodes, or
// nil when there is none.
func functionCycle(g *Graph) []string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(n core.Node) []string
	visit = func(n core.Node) []string {
		state[n.ID()] = active
		stack = append(stack, n.ID())
		for _, in := range n.Inputs() {
			for _, l := range in.Links {
				up, ok := g.byID[l.FromNodeID]
				if !ok || up.Type() != core.NodeTypeFunction {
					continue
				}
				switch state[up.ID()] {
				case active:
					for i, id := range stack {
						if id == up.ID() {
							return append(append([]string(nil), stack[i:]...), up.ID())
						}
					}
				case unvisited:
					if cycle := visit(up); cycle != nil {
						return cycle
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n.ID()] = done
		return nil
	}

	for _, n := range g.nodes {
		if n.Type() != core.NodeTypeFunction || state[n.ID()] != unvisited {
			continue
		}
		if cycle := visit(n); cycle != nil {
			return cycle
		}
	}
	return nil
}
