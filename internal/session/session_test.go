package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.AuthenticatedUser(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.SetAuthenticatedUser(ctx, "sid", "user-1"))
	uid, err := s.AuthenticatedUser(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	require.NoError(t, s.Delete(ctx, "sid"))
	_, err = s.AuthenticatedUser(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemory(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	exercise(t, m)
}

func TestMemory_Expires(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	defer m.Close()
	require.NoError(t, m.SetAuthenticatedUser(context.Background(), "sid", "u"))
	time.Sleep(50 * time.Millisecond)
	_, err := m.AuthenticatedUser(context.Background(), "sid")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	exercise(t, NewRedis(rdb, "t", time.Minute))
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
