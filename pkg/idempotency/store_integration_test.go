//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(startRedis(t), time.Minute)
	key := s.Key("orders", "user-1", "k1")

	_, claimed, err := s.Begin(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = s.Begin(ctx, key)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, key, "42"))
	result, claimed, err := s.Begin(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "42", result)

	require.NoError(t, s.Release(ctx, key))
	_, claimed, err = s.Begin(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}
