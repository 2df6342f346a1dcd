package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens added per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
// capacity: maximum burst; refillRate: tokens regained per second
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow reports whether a request may proceed, consuming a token if so
func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.Take()
	return ok
}

// Take consumes a token if one is available. When none is, it returns how
// long until the next token.
func (tb *TokenBucket) Take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, 0
	}
	if tb.refillRate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1.0 - tb.tokens) / tb.refillRate
	return false, time.Duration(wait * float64(time.Second))
}

// Tokens returns the current number of available tokens
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Reset refills the bucket to capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = float64(tb.capacity)
	tb.lastRefill = tb.now()
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
}

// RateLimiter keeps one token bucket per key. Buckets idle for longer than
// the TTL are evicted by go-cache's janitor.
type RateLimiter struct {
	buckets    *cache.Cache
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a keyed limiter.
// ttl: how long an idle bucket is kept (0 = forever)
func NewRateLimiter(capacity int, refillRate float64, ttl time.Duration) *RateLimiter {
	expiration := ttl
	cleanup := ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}
	return &RateLimiter{
		buckets:    cache.New(expiration, cleanup),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        expiration,
		now:        time.Now,
	}
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Take(key)
	return ok
}

// Take is Allow that also reports the wait until the next token
func (rl *RateLimiter) Take(key string) (bool, time.Duration) {
	return rl.bucket(key).Take()
}

// Reset refills the bucket for key
func (rl *RateLimiter) Reset(key string) {
	if b, ok := rl.buckets.Get(key); ok {
		b.(*TokenBucket).Reset()
	}
}

// Remove forgets key
func (rl *RateLimiter) Remove(key string) {
	rl.buckets.Delete(key)
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var b *TokenBucket
	if v, ok := rl.buckets.Get(key); ok {
		b = v.(*TokenBucket)
	} else {
		b = newTokenBucket(rl.capacity, rl.refillRate, rl.now)
	}
	// re-set on every use so the TTL counts from the last request
	rl.buckets.Set(key, b, rl.ttl)
	return b
}

// Stats returns statistics about the rate limiter
type Stats struct {
	ActiveBuckets int
	Capacity      int
	RefillRate    float64
}

// GetStats returns current statistics
func (rl *RateLimiter) GetStats() Stats {
	return Stats{
		ActiveBuckets: rl.buckets.ItemCount(),
		Capacity:      rl.capacity,
		RefillRate:    rl.refillRate,
	}
}
