package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
	"github.com/petal-labs/behaveflow/schemafmt"
)

// Build creates the nodes of doc through reg, applies literal parameter
// values, wires every link and validates the result. The graph is nil when
// any error-severity diagnostic was produced.
func Build(doc *Document, reg *registry.Registry, deps registry.Dependencies) (*Graph, []Diagnostic) {
	var diags []Diagnostic
	if err := schemafmt.ValidateVersion(doc.Version, schemafmt.SupportedGraphMajor); err != nil {
		diags = append(diags, errorf(CodeVersion, "version", err.Error()))
	}

	g := New(doc.Name)
	created := make(map[int]bool, len(doc.Nodes))
	for i, nj := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if nj.ID == "" {
			diags = append(diags, errorf(CodeDuplicateNode, path+".id", "Node id is required"))
			continue
		}
		if _, dup := g.Node(nj.ID); dup {
			diags = append(diags, errorf(CodeDuplicateNode, path+".id",
				fmt.Sprintf("Duplicate node ID %q", nj.ID)))
			continue
		}
		if !reg.Has(nj.Type) {
			diags = append(diags, errorf(CodeUnknownType, path+".type",
				fmt.Sprintf("Node %q references unknown type %q", nj.ID, nj.Type)))
			continue
		}
		n, err := reg.Create(deps, nj.Type, nj.ID, nj.Configuration)
		if err != nil {
			diags = append(diags, errorf(CodeInvalidConfig, path+".configuration",
				fmt.Sprintf("Node %q cannot be created: %v", nj.ID, err)))
			continue
		}
		if err := g.Add(n); err != nil {
			diags = append(diags, errorf(CodeDuplicateNode, path+".id", err.Error()))
			continue
		}
		g.SetInfo(nj.ID, NodeInfo{Label: nj.Label, Metadata: nj.Metadata})
		created[i] = true
	}

	for i, nj := range doc.Nodes {
		if !created[i] {
			continue
		}
		n, _ := g.Node(nj.ID)
		path := fmt.Sprintf("nodes[%d]", i)
		for _, name := range slices.Sorted(maps.Keys(nj.Parameters)) {
			if d, ok := applyParameter(g, reg, n, name, nj.Parameters[name], path+".parameters."+name); !ok {
				diags = append(diags, d)
			}
		}
		for _, name := range slices.Sorted(maps.Keys(nj.Flows)) {
			if d, ok := applyFlow(g, n, name, nj.Flows[name], path+".flows."+name); !ok {
				diags = append(diags, d)
			}
		}
	}

	diags = append(diags, Validate(g)...)
	if HasErrors(diags) {
		return nil, diags
	}
	return g, diags
}

func applyParameter(g *Graph, reg *registry.Registry, n core.Node, name string, p ParameterJSON, path string) (Diagnostic, bool) {
	in, err := core.FindSocket(n.Inputs(), name)
	if err != nil {
		return errorf(CodeUnknownSocket, path,
			fmt.Sprintf("Node %q (type %q) has no input %q", n.ID(), n.Description().TypeName, name)), false
	}

	if p.Link != nil {
		if _, ok := g.Node(p.Link.NodeID); !ok {
			return errorf(CodeDanglingLink, path+".link.nodeId",
				fmt.Sprintf("Input %s.%s links to unknown node %q", n.ID(), name, p.Link.NodeID)), false
		}
		if err := g.Connect(p.Link.NodeID, p.Link.Socket, n.ID(), name); err != nil {
			return connectDiagnostic(err, path+".link"), false
		}
		return Diagnostic{}, true
	}

	if p.Value == nil {
		return Diagnostic{}, true
	}
	if in.IsFlow() {
		return errorf(CodeTypeMismatch, path+".value",
			fmt.Sprintf("Flow input %s.%s cannot hold a value", n.ID(), name)), false
	}
	vt, ok := reg.ValueType(in.ValueTypeName)
	if !ok {
		return errorf(CodeTypeMismatch, path+".value",
			fmt.Sprintf("Input %s.%s has unknown value type %q", n.ID(), name, in.ValueTypeName)), false
	}
	v, err := vt.Deserialize(p.Value)
	if err != nil {
		return errorf(CodeTypeMismatch, path+".value",
			fmt.Sprintf("Input %s.%s: %v", n.ID(), name, err)), false
	}
	if s, isString := v.(string); isString && len(in.Choices) > 0 && !slices.Contains(in.Choices, s) {
		return errorf(CodeTypeMismatch, path+".value",
			fmt.Sprintf("Input %s.%s: %q is not one of %v", n.ID(), name, s, in.Choices)), false
	}
	in.Value = v
	return Diagnostic{}, true
}

func applyFlow(g *Graph, n core.Node, name string, l LinkJSON, path string) (Diagnostic, bool) {
	out, err := core.FindSocket(n.Outputs(), name)
	if err != nil {
		return errorf(CodeUnknownSocket, path,
			fmt.Sprintf("Node %q (type %q) has no output %q", n.ID(), n.Description().TypeName, name)), false
	}
	if !out.IsFlow() {
		return errorf(CodeTypeMismatch, path,
			fmt.Sprintf("Output %s.%s is not a flow output", n.ID(), name)), false
	}
	if _, ok := g.Node(l.NodeID); !ok {
		return errorf(CodeDanglingLink, path+".nodeId",
			fmt.Sprintf("Flow %s.%s links to unknown node %q", n.ID(), name, l.NodeID)), false
	}
	if err := g.Connect(n.ID(), name, l.NodeID, l.Socket); err != nil {
		return connectDiagnostic(err, path), false
	}
	return Diagnostic{}, true
}

func connectDiagnostic(err error, path string) Diagnostic {
	code := CodeDanglingLink
	switch {
	case errors.Is(err, core.ErrSocketNotFound):
		code = CodeUnknownSocket
	case errors.Is(err, core.ErrSocketType):
		code = CodeTypeMismatch
	}
	return errorf(code, path, err.Error())
}
