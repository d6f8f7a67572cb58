package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(value string, calls *atomic.Int64) Loader[string] {
	return func(_ context.Context, _ string) (string, bool, error) {
		calls.Add(1)
		return value, true, nil
	}
}

func TestGetLoadsOnceWhileFresh(t *testing.T) {
	c := New[string](Options{TTL: time.Second, MaxEntries: 10}, MetricsHooks{})
	var calls atomic.Int64

	for i := 0; i < 3; i++ {
		val, ok, err := c.Get(context.Background(), "dump-1", countingLoader("cached", &calls))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "cached", val)
	}
	assert.Equal(t, int64(1), calls.Load(), "fresh entries never hit the loader")
}

func TestGetServesStaleAndRefreshes(t *testing.T) {
	c := New[string](Options{TTL: 20 * time.Millisecond, StaleWhileRevalidate: 500 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})
	var calls atomic.Int64

	_, _, err := c.Get(context.Background(), "dump-1", countingLoader("v1", &calls))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// Within the stale window the old value comes back immediately and a
	// single background refresh runs.
	val, ok, err := c.Get(context.Background(), "dump-1", countingLoader("v2", &calls))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", val)

	assert.Eventually(t, func() bool {
		v, ok := c.Peek("dump-1")
		return ok && v == "v2"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	c := New[string](Options{TTL: 20 * time.Millisecond, StaleWhileRevalidate: 500 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})
	var calls atomic.Int64

	_, _, err := c.Get(context.Background(), "dump-1", countingLoader("v1", &calls))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// Cancel the request context immediately after the stale read. The
	// background refresh must still complete.
	ctx, cancel := context.WithCancel(context.Background())
	loader := func(ctx context.Context, _ string) (string, bool, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		return "v2", true, nil
	}
	val, ok, err := c.Get(ctx, "dump-1", loader)
	cancel()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", val)

	assert.Eventually(t, func() bool {
		v, ok := c.Peek("dump-1")
		return ok && v == "v2"
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentHitsSameKey(t *testing.T) {
	c := New[string](Options{TTL: time.Second, MaxEntries: 10}, MetricsHooks{})
	var calls atomic.Int64

	_, _, err := c.Get(context.Background(), "dump-1", countingLoader("v1", &calls))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, ok, err := c.Get(context.Background(), "dump-1", countingLoader("v1", &calls))
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v1", val)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetReloadsAfterHardExpiry(t *testing.T) {
	c := New[string](Options{TTL: 10 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})
	var calls atomic.Int64

	_, _, err := c.Get(context.Background(), "dump-1", countingLoader("v1", &calls))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	val, ok, err := c.Get(context.Background(), "dump-1", countingLoader("v2", &calls))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", val)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNegativeCaching(t *testing.T) {
	c := New[string](Options{TTL: time.Second, NegativeTTL: 100 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	errMissing := errors.New("not found")
	var calls atomic.Int64
	loader := func(_ context.Context, _ string) (string, bool, error) {
		calls.Add(1)
		return "", false, errMissing
	}

	_, ok, err := c.Get(context.Background(), "dump-missing", loader)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errMissing)

	// The miss is cached: a second lookup inside the negative TTL does
	// not call the loader again.
	_, ok, err = c.Get(context.Background(), "dump-missing", loader)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errMissing)
	assert.Equal(t, int64(1), calls.Load())
}

func TestMissesNotCachedWithoutNegativeTTL(t *testing.T) {
	c := New[string](Options{TTL: time.Second, MaxEntries: 10}, MetricsHooks{})

	var calls atomic.Int64
	loader := func(_ context.Context, _ string) (string, bool, error) {
		calls.Add(1)
		return "", false, nil
	}

	_, ok, _ := c.Get(context.Background(), "dump-missing", loader)
	assert.False(t, ok)
	_, ok, _ = c.Get(context.Background(), "dump-missing", loader)
	assert.False(t, ok)
	assert.Equal(t, int64(2), calls.Load())
}

func TestSetPeekDelete(t *testing.T) {
	c := New[string](Options{TTL: time.Second, MaxEntries: 10}, MetricsHooks{})

	c.Set("dump-1", "manual", time.Second)
	val, ok := c.Peek("dump-1")
	require.True(t, ok)
	assert.Equal(t, "manual", val)

	c.Delete("dump-1")
	_, ok = c.Peek("dump-1")
	assert.False(t, ok)
}

func TestEvictionDropsOldestFirst(t *testing.T) {
	c := New[int](Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{})

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	_, ok := c.Peek("a")
	assert.False(t, ok, "oldest entry is evicted")
	_, ok = c.Peek("b")
	assert.True(t, ok)
	_, ok = c.Peek("c")
	assert.True(t, ok)
}

func TestMetricsHooks(t *testing.T) {
	var hits, misses atomic.Int64
	c := New[string](Options{TTL: time.Second, MaxEntries: 10}, MetricsHooks{
		OnHit:  func(string) { hits.Add(1) },
		OnMiss: func(string) { misses.Add(1) },
	})
	var calls atomic.Int64

	_, _, _ = c.Get(context.Background(), "dump-1", countingLoader("v", &calls))
	_, _, _ = c.Get(context.Background(), "dump-1", countingLoader("v", &calls))

	assert.Equal(t, int64(1), misses.Load())
	assert.Equal(t, int64(1), hits.Load())
}
