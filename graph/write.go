package graph

import (
	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
	"github.com/petal-labs/behaveflow/schemafmt"
)

// ToDocument serializes g at the current format version. Data inputs are
// written as links, or as values when they differ from the socket default.
// Flow links are written from the upstream side.
func ToDocument(g *Graph, reg *registry.Registry) *Document {
	doc := &Document{
		Name:    g.name,
		Version: schemafmt.CurrentGraphVersion,
		Nodes:   make([]NodeJSON, 0, len(g.nodes)),
	}
	for _, n := range g.nodes {
		info := g.info[n.ID()]
		nj := NodeJSON{
			ID:       n.ID(),
			Type:     n.Description().TypeName,
			Label:    info.Label,
			Metadata: info.Metadata,
		}
		if cfg := n.Configuration(); len(cfg) > 0 {
			nj.Configuration = cfg
		}

		for _, in := range n.Inputs() {
			if in.IsFlow() {
				continue
			}
			if in.IsLinked() {
				l := in.Links[0]
				setParameter(&nj, in.Name, ParameterJSON{Link: &LinkJSON{NodeID: l.FromNodeID, Socket: l.FromSocket}})
				continue
			}
			if v, ok := changedValue(reg, in); ok {
				setParameter(&nj, in.Name, ParameterJSON{Value: v})
			}
		}

		for _, out := range n.Outputs() {
			if !out.IsFlow() || !out.IsLinked() {
				continue
			}
			l := out.Links[0]
			if nj.Flows == nil {
				nj.Flows = make(map[string]LinkJSON)
			}
			nj.Flows[out.Name] = LinkJSON{NodeID: l.ToNodeID, Socket: l.ToSocket}
		}
		doc.Nodes = append(doc.Nodes, nj)
	}
	return doc
}

func setParameter(nj *NodeJSON, name string, p ParameterJSON) {
	if nj.Parameters == nil {
		nj.Parameters = make(map[string]ParameterJSON)
	}
	nj.Parameters[name] = p
}

// changedValue returns the serialized value of s when it differs from the
// value the socket would be created with.
func changedValue(reg *registry.Registry, s *core.Socket) (any, bool) {
	vt, ok := reg.ValueType(s.ValueTypeName)
	if !ok || s.Value == nil {
		return nil, false
	}
	base := s.DefaultValue
	if base == nil {
		base = vt.Creator()
	}
	if vt.Equals(s.Value, base) {
		return nil, false
	}
	return vt.Serialize(s.Value), true
}
