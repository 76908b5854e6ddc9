package core

import "fmt"

// Socket is a typed connection point owned by a single node.
//
// Only the link set and the live Value change after construction.
type Socket struct {
	ValueTypeName string
	Name          string
	Label         string
	DefaultValue  any
	Choices       []string
	Value         any
	Links         []Link
}

// NewSocket creates a socket of the given value type.
func NewSocket(valueType, name string) *Socket {
	return &Socket{
		ValueTypeName: valueType,
		Name:          name,
	}
}

// NewFlowSocket creates a control socket.
func NewFlowSocket(name string) *Socket {
	return NewSocket(FlowValueType, name)
}

// WithDefault sets the default value and seeds the live value with it.
func (s *Socket) WithDefault(v any) *Socket {
	s.DefaultValue = v
	s.Value = v
	return s
}

// WithLabel sets a display label.
func (s *Socket) WithLabel(label string) *Socket {
	s.Label = label
	return s
}

// WithChoices restricts the socket to an enumerated set of values.
func (s *Socket) WithChoices(choices ...string) *Socket {
	s.Choices = choices
	return s
}

// IsFlow reports whether the socket carries control rather than data.
func (s *Socket) IsFlow() bool {
	return s.ValueTypeName == FlowValueType
}

// IsLinked reports whether the socket has at least one link.
func (s *Socket) IsLinked() bool {
	return len(s.Links) > 0
}

// AddLink appends a link to the socket's link set.
func (s *Socket) AddLink(l Link) {
	s.Links = append(s.Links, l)
}

// FindSocket returns the socket with the given name.
func FindSocket(sockets []*Socket, name string) (*Socket, error) {
	for _, s := range sockets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSocketNotFound, name)
}
