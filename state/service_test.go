package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-labs/behaveflow/core"
)

type counterState struct {
	Count int64
}

func TestMemService(t *testing.T) {
	svc := NewMemService()
	s := core.NewState("counter", svc, counterState{})

	require.NoError(t, s.Update(func(c *counterState) { c.Count += 2 }))
	data, ok := svc.GetState("counter")
	require.True(t, ok)
	assert.JSONEq(t, `{"Count":2}`, string(data))

	svc.Reset()
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Count)
}

func TestMemService_SetStateCopies(t *testing.T) {
	svc := NewMemService()
	buf := []byte(`{"Count":1}`)
	svc.SetState("n", buf)
	buf[9] = '9'

	data, _ := svc.GetState("n")
	assert.Equal(t, `{"Count":1}`, string(data))
}

func TestService_SyncAndRehydrate(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	first := NewService(store, "tick-counter", nil)
	found, err := first.Rehydrate(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	s := core.NewState("counter", first, counterState{})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(func(c *counterState) { c.Count++ }))
	}
	require.NoError(t, first.SyncAndClear(ctx))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Count, "working set is cleared after sync")

	second := NewService(store, "tick-counter", nil)
	found, err = second.Rehydrate(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	restored := core.NewState("counter", second, counterState{})
	got, err = restored.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Count)
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))

	svc := NewService(store, "g", nil)
	s := core.NewState("counter", svc, counterState{})
	require.NoError(t, s.Set(counterState{Count: 7}))
	require.NoError(t, svc.Sync(ctx))

	require.NoError(t, svc.Reset(ctx))
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Count)

	_, err = store.Load(ctx, "g")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}
