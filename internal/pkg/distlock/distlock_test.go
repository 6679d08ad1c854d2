package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLockPrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lock := NewLock(client, nil, "sync:user-1", time.Minute)
	_, ok := lock.(*RedisLock)
	assert.True(t, ok)
}

func TestNewLockWithoutBackendsIsLocal(t *testing.T) {
	// Redis down and no DATABASE_URL configured must still yield a usable
	// lock rather than one that dereferences a nil client.
	ctx := context.Background()

	a := NewLock(nil, nil, "sync:user-2", time.Minute)
	_, ok := a.(*LocalLock)
	require.True(t, ok)

	got, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	// A second instance for the same key is excluded until release.
	b := NewLock(nil, nil, "sync:user-2", time.Minute)
	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	// Other keys are independent.
	c := NewLock(nil, nil, "sync:user-3", time.Minute)
	got, err = c.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, a.Release(ctx))
	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)
	require.NoError(t, b.Release(ctx))
	require.NoError(t, c.Release(ctx))
}

func TestLocalLockReleaseWithoutHold(t *testing.T) {
	lock := NewLocalLock("sync:user-4")
	assert.NoError(t, lock.Release(context.Background()))
}
