package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()

	_, err := c.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	require.NoError(t, c.Set(ctx, ProductKey(7)+":doc", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, ProductKey(7)+":en", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, ProductKey(70), []byte("c"), 0))
	require.NoError(t, c.Set(ctx, AssetURLKey("https://x/a.jpg"), []byte("12"), 0))

	require.NoError(t, c.DeleteByPrefix(ctx, ProductKey(7)+":"))

	_, err := c.Get(ctx, ProductKey(7)+":doc")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, ProductKey(70))
	assert.NoError(t, err)
	_, err = c.Get(ctx, AssetURLKey("https://x/a.jpg"))
	assert.NoError(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "asset:url:https://x/a.jpg", AssetURLKey("https://x/a.jpg"))
	assert.Equal(t, "product:42", ProductKey(42))
}
