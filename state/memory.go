package state

import (
	"sync"

	"github.com/petal-labs/behaveflow/core"
)

// MemService is an in-memory core.StateService.
type MemService struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemService creates an empty in-memory state service.
func NewMemService() *MemService {
	return &MemService{data: make(map[string][]byte)}
}

// GetState returns the serialized state of a node.
func (s *MemService) GetState(nodeID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[nodeID]
	return data, ok
}

// SetState stores the serialized state of a node.
func (s *MemService) SetState(nodeID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[nodeID] = append([]byte(nil), data...)
}

// Reset drops every stored state. Nodes fall back to their initial state.
func (s *MemService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
}

// Snapshot copies the current state of every node.
func (s *MemService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.data))
	for id, data := range s.data {
		snap[id] = append([]byte(nil), data...)
	}
	return snap
}

// Restore replaces the current state with snap.
func (s *MemService) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte, len(snap))
	for id, data := range snap {
		s.data[id] = append([]byte(nil), data...)
	}
}

var _ core.StateService = (*MemService)(nil)
