package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, c Client, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 100*time.Millisecond))
	expire(200 * time.Millisecond)
	_, err = c.Get(ctx, "short")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestMemory(t *testing.T) {
	c := NewMemory("t")
	defer c.Close()
	exercise(t, c, time.Sleep)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(Config{Driver: "redis", Addr: mr.Addr(), Prefix: "t"})
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c, mr.FastForward)
}
