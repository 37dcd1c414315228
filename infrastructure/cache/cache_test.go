package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

func TestKey(t *testing.T) {
	t.Run("identical inputs derive identical keys", func(t *testing.T) {
		assert.Equal(t, Key("models", "gpt-4o", 5), Key("models", "gpt-4o", 5))
	})

	t.Run("different inputs derive different keys", func(t *testing.T) {
		assert.NotEqual(t, Key("models", "gpt-4o"), Key("models", "claude-3-opus"))
		assert.NotEqual(t, Key("models"), Key("jobs"))
	})

	t.Run("keys are hex encoded digests", func(t *testing.T) {
		assert.Len(t, Key("models"), 64)
	})
}

// storeContract exercises the behavior every CacheStore implementation
// must share.
func storeContract(t *testing.T, store ports.CacheStore) {
	ctx := context.Background()

	t.Run("missing key is not found", func(t *testing.T) {
		_, found, err := store.Get(ctx, Key("missing"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get round-trips JSON", func(t *testing.T) {
		key := Key("roundtrip")
		type payload struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}
		require.NoError(t, store.Set(ctx, key, payload{Name: "agar", Count: 3}, 0))

		raw, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)

		var got payload
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, payload{Name: "agar", Count: 3}, got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		key := Key("overwrite")
		require.NoError(t, store.Set(ctx, key, "first", 0))
		require.NoError(t, store.Set(ctx, key, "second", 0))

		raw, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `"second"`, string(raw))
	})

	t.Run("delete removes and tolerates absent keys", func(t *testing.T) {
		key := Key("delete")
		require.NoError(t, store.Set(ctx, key, "value", 0))
		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key))

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, Key("a"), 1, 0))
		require.NoError(t, store.Set(ctx, Key("b"), 2, 0))
		require.NoError(t, store.Clear(ctx))

		_, found, err := store.Get(ctx, Key("a"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unmarshalable values are rejected", func(t *testing.T) {
		err := store.Set(ctx, Key("bad"), func() {}, 0)
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())

	t.Run("expired entries are dropped on read", func(t *testing.T) {
		ctx := context.Background()
		store := NewMemory()
		key := Key("ttl")
		require.NoError(t, store.Set(ctx, key, "value", time.Millisecond))

		time.Sleep(5 * time.Millisecond)

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		ctx := context.Background()
		store := NewMemory()
		key := Key("forever")
		require.NoError(t, store.Set(ctx, key, "value", 0))

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisFromClient(client)
	t.Cleanup(func() { _ = store.Close() })

	storeContract(t, store)

	t.Run("expired entries are dropped", func(t *testing.T) {
		ctx := context.Background()
		key := Key("redis-ttl")
		require.NoError(t, store.Set(ctx, key, "value", time.Second))

		mr.FastForward(2 * time.Second)

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
