package core

import (
	"encoding/json"
	"fmt"
)

// StateService stores serialized node state keyed by node id.
// When attached it is the source of truth for every node that uses it.
type StateService interface {
	GetState(nodeID string) ([]byte, bool)
	SetState(nodeID string, data []byte)
}

// State is the typed state slot of a node.
//
// Every read and write round-trips through JSON, either in the slot or in
// the service when one is attached. Get always returns an independent copy,
// so changes reach the state only through Set. S must be JSON-serializable.
type State[S any] struct {
	nodeID  string
	service StateService
	initial []byte
	local   []byte
}

// NewState creates a state slot seeded with initial.
func NewState[S any](nodeID string, service StateService, initial S) *State[S] {
	data, err := json.Marshal(initial)
	if err != nil {
		panic(fmt.Sprintf("core: state for node %s is not serializable: %v", nodeID, err))
	}
	return &State[S]{
		nodeID:  nodeID,
		service: service,
		initial: data,
		local:   data,
	}
}

// Get returns the current state.
func (s *State[S]) Get() (S, error) {
	if s.service == nil {
		return s.decode(s.local)
	}
	data, ok := s.service.GetState(s.nodeID)
	if !ok {
		data = s.initial
	}
	return s.decode(data)
}

// Set replaces the current state.
func (s *State[S]) Set(v S) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state of node %s: %w", s.nodeID, err)
	}
	if s.service == nil {
		s.local = data
		return nil
	}
	s.service.SetState(s.nodeID, data)
	return nil
}

// Update reads the state, applies fn and writes the result back.
func (s *State[S]) Update(fn func(*S)) error {
	v, err := s.Get()
	if err != nil {
		return err
	}
	fn(&v)
	return s.Set(v)
}

// Reset restores the initial state.
func (s *State[S]) Reset() error {
	v, err := s.decode(s.initial)
	if err != nil {
		return err
	}
	return s.Set(v)
}

func (s *State[S]) decode(data []byte) (S, error) {
	var v S
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode state of node %s: %w", s.nodeID, err)
	}
	return v, nil
}
