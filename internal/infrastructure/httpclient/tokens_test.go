package httpclient

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Session{})

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsZero())

	require.NoError(t, store.Save(ctx, Session{Access: "a", Refresh: "r"}))
	s, _ = store.Load(ctx)
	assert.Equal(t, "a", s.Access)

	require.NoError(t, store.Clear(ctx))
	s, _ = store.Load(ctx)
	assert.True(t, s.IsZero())
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	t.Run("missing file is an empty session", func(t *testing.T) {
		s, err := store.Load(ctx)
		require.NoError(t, err)
		assert.True(t, s.IsZero())
	})

	t.Run("round trips tokens and user blob", func(t *testing.T) {
		in := Session{Access: "a", Refresh: "r", User: json.RawMessage(`{"id":3,"email":"ops@example.com"}`)}
		require.NoError(t, store.Save(ctx, in))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		out, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, in.Access, out.Access)
		assert.Equal(t, in.Refresh, out.Refresh)
		assert.JSONEq(t, string(in.User), string(out.User))
	})

	t.Run("clear removes the file and is idempotent", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := store.Load(ctx)
		assert.Error(t, err)
	})
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisStore(client, "crm:session", time.Hour)
	_, err := store.Load(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), Session{Access: "a"}))
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    42,
		"token_type": "access",
		"exp":        exp.Unix(),
	})
	signed, err := token.SignedString([]byte("not-the-server-key"))
	require.NoError(t, err)

	claims, err := ParseClaims(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "access", claims.TokenType)
	assert.InDelta(t, (5 * time.Minute).Seconds(), claims.ExpiresIn(time.Now()).Seconds(), 5)
	assert.Zero(t, claims.ExpiresIn(exp.Add(time.Minute)))

	_, err = ParseClaims("not-a-jwt")
	assert.Error(t, err)
}
