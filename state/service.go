package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/petal-labs/behaveflow/core"
)

// Service is a core.StateService backed by a Store.
//
// Reads and writes hit the in-memory working set. Rehydrate loads the
// working set from the store and SyncAndClear writes it back.
type Service struct {
	mem    *MemService
	store  Store
	key    string
	logger *slog.Logger
}

// NewService creates a service that persists under key in store.
func NewService(store Store, key string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		mem:    NewMemService(),
		store:  store,
		key:    key,
		logger: logger,
	}
}

// Key returns the snapshot key.
func (s *Service) Key() string { return s.key }

// GetState implements core.StateService.
func (s *Service) GetState(nodeID string) ([]byte, bool) { return s.mem.GetState(nodeID) }

// SetState implements core.StateService.
func (s *Service) SetState(nodeID string, data []byte) { s.mem.SetState(nodeID, data) }

// Rehydrate replaces the working set with the stored snapshot. A missing
// snapshot leaves an empty working set and reports false.
func (s *Service) Rehydrate(ctx context.Context) (bool, error) {
	snap, err := s.store.Load(ctx, s.key)
	if errors.Is(err, ErrSnapshotNotFound) {
		s.mem.Reset()
		s.logger.Debug("no state snapshot", "key", s.key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rehydrate %s: %w", s.key, err)
	}
	s.mem.Restore(snap)
	s.logger.Debug("state rehydrated", "key", s.key, "nodes", len(snap))
	return true, nil
}

// Sync writes the working set to the store.
func (s *Service) Sync(ctx context.Context) error {
	snap := s.mem.Snapshot()
	if err := s.store.Save(ctx, s.key, snap); err != nil {
		return fmt.Errorf("sync %s: %w", s.key, err)
	}
	s.logger.Debug("state synced", "key", s.key, "nodes", len(snap))
	return nil
}

// SyncAndClear writes the working set to the store and then clears it.
func (s *Service) SyncAndClear(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.mem.Reset()
	return nil
}

// Reset clears the working set and deletes the stored snapshot.
func (s *Service) Reset(ctx context.Context) error {
	s.mem.Reset()
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("reset %s: %w", s.key, err)
	}
	return nil
}

var _ core.StateService = (*Service)(nil)
