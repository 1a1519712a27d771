//go:build integration

package cache

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
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := NewRedisIdempotencyStoreWithClient(client, "test:")
	defer store.Close()

	isNew, err := store.MarkProcessed(ctx, "reminder:inv-1:2026-03-02", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.MarkProcessed(ctx, "reminder:inv-1:2026-03-02", time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew)

	processed, err := store.IsProcessed(ctx, "reminder:inv-1:2026-03-02")
	require.NoError(t, err)
	assert.True(t, processed)

	ttl, err := client.TTL(ctx, "test:reminder:inv-1:2026-03-02").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Release(ctx, "reminder:inv-1:2026-03-02"))
	processed, err = store.IsProcessed(ctx, "reminder:inv-1:2026-03-02")
	require.NoError(t, err)
	assert.False(t, processed)
}
