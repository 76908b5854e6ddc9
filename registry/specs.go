package registry

import (
	"fmt"

	"github.com/petal-labs/behaveflow/core"
)

// SocketSpec describes one socket of a node type.
type SocketSpec struct {
	Name         string   `json:"name"`
	ValueType    string   `json:"valueType"`
	Label        string   `json:"label,omitempty"`
	DefaultValue any      `json:"defaultValue,omitempty"`
	Choices      []string `json:"choices,omitempty"`
}

// NodeSpec describes a node type as built with its default configuration.
type NodeSpec struct {
	Type            string               `json:"type"`
	OtherTypeNames  []string             `json:"otherTypeNames,omitempty"`
	Category        string               `json:"category"`
	Label           string               `json:"label"`
	HelpDescription string               `json:"helpDescription,omitempty"`
	NodeType        core.NodeType        `json:"nodeType"`
	Configuration   map[string]ConfigDef `json:"configuration,omitempty"`
	Inputs          []SocketSpec         `json:"inputs"`
	Outputs         []SocketSpec         `json:"outputs"`
}

// NodeSpecs instantiates every registered type and describes its sockets.
func (r *Registry) NodeSpecs() ([]NodeSpec, error) {
	var specs []NodeSpec
	for _, def := range r.All() {
		n, err := r.Create(Dependencies{}, def.TypeName, "spec", nil)
		if err != nil {
			return nil, fmt.Errorf("node spec %s: %w", def.TypeName, err)
		}
		specs = append(specs, NodeSpec{
			Type:            def.TypeName,
			OtherTypeNames:  def.OtherTypeNames,
			Category:        def.Category,
			Label:           def.Label,
			HelpDescription: def.HelpDescription,
			NodeType:        n.Type(),
			Configuration:   def.Configuration,
			Inputs:          r.socketSpecs(n.Inputs()),
			Outputs:         r.socketSpecs(n.Outputs()),
		})
	}
	return specs, nil
}

func (r *Registry) socketSpecs(sockets []*core.Socket) []SocketSpec {
	out := make([]SocketSpec, 0, len(sockets))
	for _, s := range sockets {
		spec := SocketSpec{
			Name:      s.Name,
			ValueType: s.ValueTypeName,
			Label:     s.Label,
			Choices:   s.Choices,
		}
		if s.DefaultValue != nil {
			spec.DefaultValue = s.DefaultValue
			if vt, ok := r.ValueType(s.ValueTypeName); ok {
				spec.DefaultValue = vt.Serialize(s.DefaultValue)
			}
		}
		out = append(out, spec)
	}
	return out
}
