package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/petal-labs/behaveflow/runtime"
)

// MemEventStore is a thread-safe in-memory event store.
type MemEventStore struct {
	mu     sync.RWMutex
	events map[string][]runtime.Event // runID -> events in append order
}

// NewMemEventStore creates a new in-memory event store.
func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		events: make(map[string][]runtime.Event),
	}
}

func (s *MemEventStore) Append(_ context.Context, event runtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RunID] = append(s.events[event.RunID], event)
	return nil
}

func (s *MemEventStore) List(_ context.Context, q Query) ([]runtime.Event, error) {
	s.mu.RLock()
	var result []runtime.Event
	for _, e := range s.events[q.RunID] {
		if q.match(e) {
			result = append(result, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (s *MemEventStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxSeq uint64
	for _, e := range s.events[runID] {
		maxSeq = max(maxSeq, e.Seq)
	}
	return maxSeq, nil
}

func (s *MemEventStore) RunIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ EventStore = (*MemEventStore)(nil)
