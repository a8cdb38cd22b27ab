//go:build integration

package httpclient

import (
	"context"
	"testing"
	"time"

	"github.com/erp/crm/internal/testutil/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_SaveLoadClear(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	client := redistest.Client(t)
	store := NewRedisStore(client, "crm:session:test", time.Hour)

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsZero(), "missing key loads as no session")

	want := Session{Access: "acc-1", Refresh: "ref-1", User: []byte(`{"id":11,"email":"ada@example.com"}`)}
	require.NoError(t, store.Save(ctx, want))

	ttl, err := client.TTL(ctx, "crm:session:test").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	// A second process sharing the key sees the same session
	got, err := NewRedisStore(client, "crm:session:test", time.Hour).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Access, got.Access)
	assert.Equal(t, want.Refresh, got.Refresh)
	assert.JSONEq(t, string(want.User), string(got.User))

	require.NoError(t, store.Clear(ctx))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsZero())
}

func TestRedisStore_NoExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	client := redistest.Client(t)
	store := NewRedisStore(client, "crm:session:forever", 0)

	require.NoError(t, store.Save(ctx, Session{Access: "a", Refresh: "r"}))
	ttl, err := client.TTL(ctx, "crm:session:forever").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	client := redistest.Client(t)
	require.NoError(t, client.Set(ctx, "crm:session:bad", "not json", 0).Err())

	_, err := NewRedisStore(client, "crm:session:bad", 0).Load(ctx)
	assert.ErrorContains(t, err, "decode session")
}
