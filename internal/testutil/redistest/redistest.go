// Package redistest starts throwaway Redis servers for integration tests.
package redistest

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Image is the Redis image started for each test
const Image = "redis:7-alpine"

// Options starts a Redis container for t and returns options pointing at it.
// The container is terminated when t finishes.
func Options(t *testing.T) *redis.Options {
	t.Helper()

	ctx := context.Background()
	container, err := tcredis.Run(ctx, Image,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get connection string")

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	return opts
}

// Client returns a client connected to a fresh Redis container
func Client(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(Options(t))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}
