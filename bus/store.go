package bus

import (
	"context"

	"github.com/petal-labs/behaveflow/runtime"
)

// Query selects stored events of one run.
type Query struct {
	// RunID is the engine run to read. Required.
	RunID string

	// AfterSeq returns events with Seq > AfterSeq (0 means all).
	AfterSeq uint64

	// Limit caps the number of events returned (0 means no limit).
	Limit int

	// Kinds restricts the result to these kinds when non-empty.
	Kinds []runtime.EventKind

	// NodeID restricts the result to one node when set.
	NodeID string
}

func (q Query) match(e runtime.Event) bool {
	if e.RunID != q.RunID || e.Seq <= q.AfterSeq {
		return false
	}
	if q.NodeID != "" && e.NodeID != q.NodeID {
		return false
	}
	if len(q.Kinds) == 0 {
		return true
	}
	for _, k := range q.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// EventStore persists events for replay.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event runtime.Event) error

	// List returns the events selected by q, ordered by Seq.
	List(ctx context.Context, q Query) ([]runtime.Event, error)

	// LatestSeq returns the highest Seq for a run (0 if no events).
	LatestSeq(ctx context.Context, runID string) (uint64, error)

	// RunIDs returns the distinct run ids in the store.
	RunIDs(ctx context.Context) ([]string, error)
}
