package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "nonce:w", []byte("abc"), time.Minute))
	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))

	v, err := m.Get(ctx, "nonce:w")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "nonce:w")
	assert.ErrorIs(t, err, ErrMiss, "entries expire at their deadline")

	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err, "zero ttl never expires")
}

func TestMemoryStore_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	v, err := m.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = m.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_DelAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(0, 0)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "c", []byte("3"), time.Hour))

	require.NoError(t, m.Del(ctx, "c", "missing"))
	_, err := m.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrMiss)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, m.Sweep())

	_, err = m.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	type status struct {
		Connected bool `json:"connected"`
	}
	require.NoError(t, SetJSON(ctx, m, "status", status{Connected: true}, time.Minute))

	var got status
	require.NoError(t, GetJSON(ctx, m, "status", &got))
	assert.True(t, got.Connected)

	assert.ErrorIs(t, GetJSON(ctx, m, "missing", &got), ErrMiss)

	require.NoError(t, m.Set(ctx, "bad", []byte("{"), 0))
	assert.Error(t, GetJSON(ctx, m, "bad", &got))
}

func TestNewRedisStore_Errors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "not a url", "pfm:")
	assert.ErrorContains(t, err, "parsing redis URL")

	// port 1 is reserved; nothing listens there
	_, err = NewRedisStore(ctx, "redis://127.0.0.1:1/0", "pfm:")
	assert.ErrorContains(t, err, "connecting to redis")
}
