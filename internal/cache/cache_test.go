package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache[V any](ttl time.Duration) (*Cache[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V](ttl)
	c.now = clock.Now
	return c, clock
}

func TestNew(t *testing.T) {
	c := New[string](time.Minute)
	assert.NotNil(t, c)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache[string](time.Minute)

	c.Set("key1", "value1")
	val, exists := c.Get("key1")
	assert.True(t, exists)
	assert.Equal(t, "value1", val)

	val, exists = c.Get("nonexistent")
	assert.False(t, exists)
	assert.Empty(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c, clock := newTestCache[[]float32](time.Minute)

	c.Set("expiring", []float32{0.1, 0.2})

	val, exists := c.Get("expiring")
	assert.True(t, exists)
	assert.Equal(t, []float32{0.1, 0.2}, val)

	clock.Advance(time.Minute)

	val, exists = c.Get("expiring")
	assert.False(t, exists)
	assert.Nil(t, val)
	assert.Equal(t, 0, c.Len())
}

func TestCache_UpdateValueRefreshesTTL(t *testing.T) {
	c, clock := newTestCache[int](time.Minute)

	c.Set("key", 1)
	clock.Advance(45 * time.Second)
	c.Set("key", 2)
	clock.Advance(45 * time.Second)

	val, exists := c.Get("key")
	assert.True(t, exists)
	assert.Equal(t, 2, val)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache[string](time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	_, exists := c.Get("a")
	assert.False(t, exists)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetOrLoad(t *testing.T) {
	c, clock := newTestCache[string](time.Minute)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return fmt.Sprintf("loaded-%d", calls), nil
	}

	val, err := c.GetOrLoad(ctx, "key", load)
	require.NoError(t, err)
	assert.Equal(t, "loaded-1", val)

	val, err = c.GetOrLoad(ctx, "key", load)
	require.NoError(t, err)
	assert.Equal(t, "loaded-1", val)
	assert.Equal(t, 1, calls)

	clock.Advance(2 * time.Minute)

	val, err = c.GetOrLoad(ctx, "key", load)
	require.NoError(t, err)
	assert.Equal(t, "loaded-2", val)
}

func TestCache_GetOrLoadErrorNotCached(t *testing.T) {
	c, _ := newTestCache[string](time.Minute)
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, "key", func(context.Context) (string, error) {
		return "", errors.New("provider down")
	})
	assert.EqualError(t, err, "provider down")
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set(fmt.Sprintf("key-%d", i%10), i)
		}(i)
		go func(i int) {
			defer wg.Done()
			c.Get(fmt.Sprintf("key-%d", i%10))
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 10, c.Len())
}

func BenchmarkCache_Get(b *testing.B) {
	c := New[string](time.Minute)
	c.Set("key", "value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}
