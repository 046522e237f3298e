package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer c.Close()
	kv := NewRedisKV(c)

	_, err = kv.Get(ctx, "profile:abc")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "profile:abc", `{"id":"1"}`, time.Minute))
	val, err := kv.Get(ctx, "profile:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, val)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "profile:abc")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", 0))
	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
