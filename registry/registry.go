// Package registry maps node type names to node definitions and value type
// names to value types. Graph loading, validation and the CLI all build
// nodes through a Registry.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/lifecycle"
)

// Registry errors
var (
	ErrUnknownNodeType  = errors.New("unknown node type")
	ErrUnknownValueType = errors.New("unknown value type")
)

// Dependencies are the collaborators handed to every node factory.
// Any of them may be nil.
type Dependencies struct {
	Logger    *slog.Logger
	Lifecycle lifecycle.Emitter
	State     core.StateService
}

// ConfigDef describes one configuration entry of a node type.
type ConfigDef struct {
	ValueType    string `json:"valueType"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// Factory constructs a node. cfg already contains configuration defaults.
type Factory func(deps Dependencies, id string, cfg core.Configuration) (core.Node, error)

// NodeDefinition describes a registered node type.
type NodeDefinition struct {
	TypeName        string
	OtherTypeNames  []string
	Category        string
	Label           string
	HelpDescription string
	Configuration   map[string]ConfigDef
	Factory         Factory
}

// Description returns the core description shared by nodes of this type.
func (d NodeDefinition) Description() core.Description {
	return core.Description{
		TypeName:        d.TypeName,
		OtherTypeNames:  d.OtherTypeNames,
		Category:        d.Category,
		Label:           d.Label,
		HelpDescription: d.HelpDescription,
	}
}

// Registry holds node definitions and value types.
type Registry struct {
	mu         sync.RWMutex
	defs       map[string]NodeDefinition
	aliases    map[string]string
	order      []string // preserves registration order
	values     map[string]ValueType
	valueOrder []string
}

// New returns a registry with the built-in value types registered.
func New() *Registry {
	r := &Registry{
		defs:    make(map[string]NodeDefinition),
		aliases: make(map[string]string),
		values:  make(map[string]ValueType),
	}
	for _, vt := range BuiltinValueTypes() {
		r.RegisterValueType(vt)
	}
	return r
}

// Register adds a node definition. A definition with the same type name is
// overwritten.
func (r *Registry) Register(def NodeDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.TypeName]; !exists {
		r.order = append(r.order, def.TypeName)
	}
	r.defs[def.TypeName] = def
	for _, alias := range def.OtherTypeNames {
		r.aliases[alias] = def.TypeName
	}
}

// Get returns a node definition by type name or alias.
func (r *Registry) Get(typeName string) (NodeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.defs[typeName]; ok {
		return def, true
	}
	if canonical, ok := r.aliases[typeName]; ok {
		def, ok := r.defs[canonical]
		return def, ok
	}
	return NodeDefinition{}, false
}

// Has returns true if the type name or alias is registered.
func (r *Registry) Has(typeName string) bool {
	_, ok := r.Get(typeName)
	return ok
}

// All returns all node definitions in registration order.
func (r *Registry) All() []NodeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]NodeDefinition, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.defs[name])
	}
	return result
}

// Len returns the number of registered node types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// RegisterValueType adds or replaces a value type.
func (r *Registry) RegisterValueType(vt ValueType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.values[vt.Name]; !exists {
		r.valueOrder = append(r.valueOrder, vt.Name)
	}
	r.values[vt.Name] = vt
}

// ValueType returns a value type by name.
func (r *Registry) ValueType(name string) (ValueType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vt, ok := r.values[name]
	return vt, ok
}

// ValueTypes returns all value types in registration order.
func (r *Registry) ValueTypes() []ValueType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ValueType, 0, len(r.valueOrder))
	for _, name := range r.valueOrder {
		result = append(result, r.values[name])
	}
	return result
}

// Create builds a node of the given type. Configuration defaults are
// applied first, and every data socket is given a live value: its default
// deserialized through its value type, or the value type's zero value.
func (r *Registry) Create(deps Dependencies, typeName, id string, cfg core.Configuration) (core.Node, error) {
	def, ok := r.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, typeName)
	}

	merged := make(core.Configuration, len(def.Configuration)+len(cfg))
	for name, cd := range def.Configuration {
		if cd.DefaultValue != nil {
			merged[name] = cd.DefaultValue
		}
	}
	maps.Copy(merged, cfg)

	node, err := def.Factory(deps, id, merged)
	if err != nil {
		return nil, fmt.Errorf("create %s node %s: %w", def.TypeName, id, err)
	}
	if err := r.materialize(node); err != nil {
		return nil, err
	}
	return node, nil
}

func (r *Registry) materialize(n core.Node) error {
	for _, sockets := range [][]*core.Socket{n.Inputs(), n.Outputs()} {
		for _, s := range sockets {
			if s.IsFlow() {
				continue
			}
			vt, ok := r.ValueType(s.ValueTypeName)
			if !ok {
				return fmt.Errorf("%w: %q on %s.%s", ErrUnknownValueType, s.ValueTypeName, n.ID(), s.Name)
			}
			if s.DefaultValue == nil {
				if s.Value == nil {
					s.Value = vt.Creator()
				}
				continue
			}
			v, err := vt.Deserialize(s.DefaultValue)
			if err != nil {
				return fmt.Errorf("default of %s.%s: %w", n.ID(), s.Name, err)
			}
			s.DefaultValue = v
			s.Value = vt.Clone(v)
		}
	}
	return nil
}

// Validate instantiates every definition with its default configuration
// and checks the resulting nodes. All problems are returned joined.
func (r *Registry) Validate() error {
	var errs []error
	for _, def := range r.All() {
		if def.Factory == nil {
			errs = append(errs, fmt.Errorf("node type %s: no factory", def.TypeName))
			continue
		}
		n, err := r.Create(Dependencies{}, def.TypeName, "validate", nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n.Description().TypeName != def.TypeName {
			errs = append(errs, fmt.Errorf("node type %s: factory produced %s", def.TypeName, n.Description().TypeName))
		}
		if err := core.ValidateNode(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
