//go:build integration

package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"endorser/pkg/testutil/containers"
)

func TestRedisNetwork(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	r := NewRedis(rc.Client)

	added, err := r.RecordSees(ctx, alice, []string{carol, bob, ""})
	require.NoError(t, err)
	assert.Equal(t, []string{carol, bob}, added)

	added, err = r.RecordSees(ctx, alice, []string{bob})
	require.NoError(t, err)
	assert.Empty(t, added)

	seen, err := r.CanSee(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{bob, carol}, seen)

	seen, err = r.CanSee(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, seen)

	// a second instance over the same server shares the relation
	other := NewCached(NewRedis(rc.Client), 0)
	seen, err = other.CanSee(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{bob, carol}, seen)
}
