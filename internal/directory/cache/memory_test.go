package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	t.Run("miss on unknown key", func(t *testing.T) {
		_, err := c.Get(ctx, MemberKey(1))
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("hit until ttl elapses", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, MemberKey(2), []byte("zone"), time.Minute))
		got, err := c.Get(ctx, MemberKey(2))
		require.NoError(t, err)
		assert.Equal(t, []byte("zone"), got)

		now = now.Add(time.Minute)
		_, err = c.Get(ctx, MemberKey(2))
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("delete evicts", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, StructureKey(3), []byte("x"), time.Hour))
		require.NoError(t, c.Delete(ctx, StructureKey(3)))
		_, err := c.Get(ctx, StructureKey(3))
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("stored value is copied", func(t *testing.T) {
		buf := []byte("abc")
		require.NoError(t, c.Set(ctx, MemberKey(4), buf, time.Hour))
		buf[0] = 'z'
		got, err := c.Get(ctx, MemberKey(4))
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("member and structure keys do not collide", func(t *testing.T) {
		assert.NotEqual(t, MemberKey(7), StructureKey(7))
	})
}
