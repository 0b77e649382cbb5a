package dispatch_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/mongo"
)

func newMongoStore(t *testing.T) *dispatch.MongoStore {
	t.Helper()

	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}

	ctx := context.Background()
	client, err := mongo.New(ctx, mongo.Config{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    20,
		RetryAttempts:  1,
	})
	require.NoError(t, err)

	db := client.Database("dialbill_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store := dispatch.NewMongoStore(db, "")
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStore_ConcurrentClaim(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newAction("a1", time.Now())))
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

	require.NoError(t, store.Revert(ctx, "a1", dispatch.FlagTMinus60))
	won, err := store.Claim(ctx, "a1", dispatch.FlagTMinus60)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Claimed(dispatch.FlagTMinus60))
}

func TestMongoStore_NotFound(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "missing", dispatch.FlagConfirm)
	assert.ErrorIs(t, err, dispatch.ErrActionNotFound)
	assert.ErrorIs(t, store.Revert(ctx, "missing", dispatch.FlagConfirm), dispatch.ErrActionNotFound)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, dispatch.ErrActionNotFound)
}

func TestMongoStore_ListActive(t *testing.T) {
	store := newMongoStore(t)
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
}
