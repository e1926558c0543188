//go:build integration

package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"endorser/pkg/testutil/containers"
)

func TestRedisLocker(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	first := NewRedisLocker(rc.Client, "test:chain", time.Minute)
	second := NewRedisLocker(rc.Client, "test:chain", time.Minute)

	release, ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lease is exclusive")

	release()
	release2, ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	release()
	n, err := rc.Client.Exists(ctx, "test:chain").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a stale release must not drop another writer's lease")
	release2()
}

func TestRedisLockerLeaseExpires(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	locker := NewRedisLocker(rc.Client, "test:chain:ttl", 200*time.Millisecond)
	_, ok, err := locker.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, err := locker.TryLock(ctx)
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond)
}
