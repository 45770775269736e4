package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-guard/internal/client"
)

func newTestStore(t *testing.T) (*AttemptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := client.NewRedisClientFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), nil)
	t.Cleanup(func() { _ = rc.Close() })
	return NewAttemptStore(rc, "login_guard", nil), mr
}

func TestAttemptStore_RoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "c1:failureCount")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "c1:failureCount", "2"))
	v, ok, err := store.Get(ctx, "c1:failureCount")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	raw, err := mr.Get("login_guard:c1:failureCount")
	require.NoError(t, err)
	assert.Equal(t, "2", raw)
	assert.Zero(t, mr.TTL("login_guard:c1:failureCount"))

	require.NoError(t, store.Remove(ctx, "c1:failureCount"))
	assert.False(t, mr.Exists("login_guard:c1:failureCount"))
}

func TestAttemptStore_UnavailableServer(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	err := store.Set(context.Background(), "c1:failureCount", "1")
	assert.Error(t, err)
	_, _, err = store.Get(context.Background(), "c1:failureCount")
	assert.Error(t, err)
}
