package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, tb.Allow(), "6th request should be denied")

	clock.Advance(2 * time.Second)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_TakeReportsWait(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(1, 0.5, clock.Now)

	ok, wait := tb.Take()
	assert.True(t, ok)
	assert.Zero(t, wait)

	ok, wait = tb.Take()
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	clock.Advance(time.Second)
	ok, wait = tb.Take()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(3, 10, clock.Now)

	clock.Advance(time.Hour)
	assert.Equal(t, 3.0, tb.Tokens())
}

func TestTokenBucket_Reset(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(3, 1.0, clock.Now)

	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	require.False(t, tb.Allow())

	tb.Reset()
	assert.Equal(t, 3.0, tb.Tokens())
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, 1.0, time.Minute)
	rl.now = clock.Now

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.GetStats().ActiveBuckets)

	rl.Reset("10.0.0.1")
	assert.True(t, rl.Allow("10.0.0.1"))

	rl.Remove("10.0.0.2")
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)
}

func TestRateLimiter_ConcurrentAllow(t *testing.T) {
	rl := NewRateLimiter(50, 0, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("same-client") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}
