package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBucket(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Bucket, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := ratelimiter.NewMemoryStore(0, ratelimiter.WithClock(c.Now))
	t.Cleanup(store.Close)
	b, err := ratelimiter.New(store, cfg)
	require.NoError(t, err)
	return b, c
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(0)
	defer store.Close()

	for _, cfg := range []ratelimiter.Config{
		{},
		{Capacity: 1, RefillRate: 1},
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: -1, RefillInterval: time.Second},
	} {
		_, err := ratelimiter.New(store, cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}
}

func TestBucket_ConsumesAndRefills(t *testing.T) {
	t.Parallel()

	b, c := newBucket(t, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute})
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	// a denied call takes nothing, so one interval buys exactly one request
	c.Advance(time.Minute)
	res, err = b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)

	c.Advance(10 * time.Minute)
	res, err = b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining, "refill is capped at capacity")
}

func TestBucket_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	b, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	res, err := b.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed())

	res, err = b.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	res, err = b.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed())

	require.NoError(t, b.Reset(ctx, "a"))
	res, err = b.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}

func TestBucket_AllowN(t *testing.T) {
	t.Parallel()

	b, _ := newBucket(t, ratelimiter.Config{Capacity: 5, RefillRate: 5, RefillInterval: time.Minute})
	ctx := context.Background()

	_, err := b.AllowN(ctx, "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokens)

	res, err := b.AllowN(ctx, "k", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)

	res, err = b.AllowN(ctx, "k", 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	res, err = b.AllowN(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}

func TestBucket_Concurrent(t *testing.T) {
	t.Parallel()

	b, _ := newBucket(t, ratelimiter.Config{Capacity: 50, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(ctx, "k")
			if err == nil && res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestResult_RetryAfter(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ratelimiter.Result{Remaining: 0, ResetAt: time.Now().Add(time.Hour)}.RetryAfter())
	assert.Positive(t, ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(time.Hour)}.RetryAfter())
	assert.Zero(t, ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(-time.Hour)}.RetryAfter())
}
