package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	t.Helper()
	c, err := NewCache(Config{GCInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "travel:dm17", "blob", 0))
	v, err := c.Get(ctx, "travel:dm17")
	require.NoError(t, err)
	assert.Equal(t, "blob", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.LPush(ctx, "l", "a"))
	require.NoError(t, c.Del(ctx, "k", "l"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "recent", "a", "b"))
	require.NoError(t, c.LPush(ctx, "recent", "c"))

	got, err := c.LRange(ctx, "recent", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, got)

	got, err = c.LRange(ctx, "recent", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got)

	require.NoError(t, c.LTrim(ctx, "recent", 0, 1))
	got, err = c.LRange(ctx, "recent", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, got)

	require.NoError(t, c.LTrim(ctx, "recent", 5, 9))
	got, err = c.LRange(ctx, "recent", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
