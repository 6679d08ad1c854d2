package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercrm/commitment-engine/internal/commitment"
)

func newTestShadowStore(t *testing.T) (*ShadowStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewShadowStore(client), mr
}

func testShadow(userID, id, deletedAt string) *commitment.DeletedShadow {
	return &commitment.DeletedShadow{
		CommitmentID: id,
		UserID:       userID,
		Data: commitment.Commitment{
			CommitmentID: id,
			UserID:       userID,
			What:         "send the deck",
			Status:       "active",
		},
		DeletedAt: deletedAt,
	}
}

func TestShadowStoreRoundTrip(t *testing.T) {
	store, mr := newTestShadowStore(t)
	ctx := context.Background()

	shadow := testShadow("user-1", "commitment_abc", "2026-03-09T10:00:00Z")
	require.NoError(t, store.Save(ctx, shadow))

	assert.Equal(t, ShadowTTL, mr.TTL("deleted_commitment:user-1:commitment_abc"))

	got, err := store.Get(ctx, "user-1", "commitment_abc")
	require.NoError(t, err)
	assert.Equal(t, "commitment_abc", got.CommitmentID)
	assert.Equal(t, "send the deck", got.Data.What)

	require.NoError(t, store.Delete(ctx, "user-1", "commitment_abc"))
	_, err = store.Get(ctx, "user-1", "commitment_abc")
	assert.ErrorIs(t, err, commitment.ErrShadowNotFound)
}

func TestShadowStoreGetMissing(t *testing.T) {
	store, _ := newTestShadowStore(t)

	_, err := store.Get(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, commitment.ErrShadowNotFound)
}

func TestShadowStoreExpiry(t *testing.T) {
	store, mr := newTestShadowStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testShadow("user-1", "commitment_old", "2026-03-08T10:00:00Z")))
	mr.FastForward(ShadowTTL + time.Minute)

	_, err := store.Get(ctx, "user-1", "commitment_old")
	assert.ErrorIs(t, err, commitment.ErrShadowNotFound)
}

func TestShadowStoreListNewestFirst(t *testing.T) {
	store, _ := newTestShadowStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testShadow("user-1", "commitment_a", "2026-03-09T08:00:00Z")))
	require.NoError(t, store.Save(ctx, testShadow("user-1", "commitment_b", "2026-03-09T12:00:00Z")))
	require.NoError(t, store.Save(ctx, testShadow("user-1", "commitment_c", "2026-03-09T10:00:00Z")))
	// Another user's shadows must not leak in.
	require.NoError(t, store.Save(ctx, testShadow("user-2", "commitment_x", "2026-03-09T11:00:00Z")))

	shadows, err := store.List(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, shadows, 3)
	assert.Equal(t, "commitment_b", shadows[0].CommitmentID)
	assert.Equal(t, "commitment_c", shadows[1].CommitmentID)
	assert.Equal(t, "commitment_a", shadows[2].CommitmentID)

	limited, err := store.List(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "commitment_b", limited[0].CommitmentID)
}

func TestShadowStoreWithoutRedis(t *testing.T) {
	// Redis being down at boot leaves the server with a nil client; every
	// shadow operation must degrade instead of panicking so deletes stay
	// best-effort.
	store := NewShadowStore(nil)
	ctx := context.Background()

	err := store.Save(ctx, testShadow("user-1", "commitment_abc", "2026-03-09T10:00:00Z"))
	assert.ErrorIs(t, err, ErrShadowUnavailable)

	_, err = store.Get(ctx, "user-1", "commitment_abc")
	assert.ErrorIs(t, err, commitment.ErrShadowNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "user-1", "commitment_abc"), ErrShadowUnavailable)

	shadows, err := store.List(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, shadows)
}

func TestShadowStoreAvailable(t *testing.T) {
	store, mr := newTestShadowStore(t)

	assert.True(t, store.Available(context.Background()))
	mr.Close()
	assert.False(t, store.Available(context.Background()))
	assert.False(t, (&ShadowStore{}).Available(context.Background()))
}
