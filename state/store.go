package state

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrSnapshotNotFound is returned by Store.Load for unknown keys.
var ErrSnapshotNotFound = errors.New("state snapshot not found")

// Snapshot is the serialized state of a graph, keyed by node id.
type Snapshot map[string]json.RawMessage

// Store persists snapshots.
type Store interface {
	// Save stores snap under key, replacing any previous snapshot.
	Save(ctx context.Context, key string, snap Snapshot) error

	// Load returns the snapshot under key or ErrSnapshotNotFound.
	Load(ctx context.Context, key string) (Snapshot, error)

	// Delete removes the snapshot under key. Unknown keys are not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys of every live snapshot.
	List(ctx context.Context) ([]string, error)
}
