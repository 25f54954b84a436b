package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseRepository runs the contract shared by every backend.
func exerciseRepository(t *testing.T, r interface {
	Repository
	Swapper
	PrefixDeleter
}) {
	t.Helper()
	ctx := context.Background()

	v, err := r.Get(ctx, "alice-profile")
	require.NoError(t, err)
	assert.Nil(t, v, "absent key must read as nil")

	require.NoError(t, r.Set(ctx, "alice-profile", []byte("v1")))
	require.NoError(t, r.Set(ctx, "alice-profile", []byte("v2")))
	v, err = r.Get(ctx, "alice-profile")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	ok, err := r.CompareAndSwap(ctx, "alice-profile", nil, []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok, "insert-if-absent must fail on existing key")

	ok, err = r.CompareAndSwap(ctx, "alice-profile", []byte("stale"), []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok, "swap against stale value must fail")

	ok, err = r.CompareAndSwap(ctx, "alice-profile", []byte("v2"), []byte("v3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CompareAndSwap(ctx, "alice-queue", nil, []byte("q1"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Set(ctx, "Alice-other", []byte("keep")))
	require.NoError(t, r.Set(ctx, "bob-profile", []byte("keep")))

	n, err := r.DeletePrefix(ctx, "alice-")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, k := range []string{"alice-profile", "alice-queue"} {
		v, err := r.Get(ctx, k)
		require.NoError(t, err)
		assert.Nil(t, v, k)
	}
	for _, k := range []string{"Alice-other", "bob-profile"} {
		v, err := r.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), v, k)
	}

	require.NoError(t, r.Delete(ctx, "bob-profile"))
	require.NoError(t, r.Delete(ctx, "bob-profile"), "delete must be idempotent")
}

func TestMemoryRepository_Contract(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_ValuesAreCopied(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	in := []byte{1, 2, 3}
	require.NoError(t, r.Set(ctx, "k", in))
	in[0] = 9

	out, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)

	out[1] = 9
	again, _ := r.Get(ctx, "k")
	assert.Equal(t, []byte{1, 2, 3}, again)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Set(ctx, "a", nil))
	assert.Equal(t, []string{"a", "k"}, r.Keys())
}
