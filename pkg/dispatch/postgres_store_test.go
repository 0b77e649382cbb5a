package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/pg/pgtest"
)

func TestPostgresStore_ConcurrentClaim(t *testing.T) {
	store := dispatch.NewPostgresStore(pgtest.NewPool(t))
	ctx := context.Background()

	seeded := newAction("a1", time.Now())
	seeded.Claims = map[dispatch.Flag]bool{dispatch.FlagConfirm: true}
	require.NoError(t, store.Create(ctx, seeded))
	assert.ErrorIs(t, store.Create(ctx, newAction("a1", time.Now())), dispatch.ErrActionExists)

	const workers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			won, err := store.Claim(ctx, "a1", dispatch.FlagTMinus60)
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Claimed(dispatch.FlagConfirm))
	assert.True(t, got.Claimed(dispatch.FlagTMinus60))

	require.NoError(t, store.Revert(ctx, "a1", dispatch.FlagTMinus60))
	require.NoError(t, store.Revert(ctx, "a1", dispatch.FlagTMinus60), "reverting an unclaimed flag is a no-op")
	won, err := store.Claim(ctx, "a1", dispatch.FlagTMinus60)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestPostgresStore_NotFound(t *testing.T) {
	store := dispatch.NewPostgresStore(pgtest.NewPool(t))
	ctx := context.Background()

	_, err := store.Claim(ctx, "missing", dispatch.FlagConfirm)
	assert.ErrorIs(t, err, dispatch.ErrActionNotFound)
	assert.ErrorIs(t, store.Revert(ctx, "missing", dispatch.FlagConfirm), dispatch.ErrActionNotFound)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, dispatch.ErrActionNotFound)

	_, err = store.Claim(ctx, "missing", dispatch.Flag("bogus"))
	assert.ErrorIs(t, err, dispatch.ErrInvalidFlag)
}

func TestPostgresStore_ListActive(t *testing.T) {
	store := dispatch.NewPostgresStore(pgtest.NewPool(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	off := newAction("off", now.Add(time.Hour))
	off.Active = false
	for _, a := range []*dispatch.Action{
		newAction("b", now.Add(2*time.Hour)),
		newAction("a", now.Add(time.Hour)),
		newAction("old", now.Add(-time.Hour)),
		off,
	} {
		require.NoError(t, store.Create(ctx, a))
	}

	got, err := store.ListActive(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Empty(t, got[0].Claims)
}
