package llmrouter

import (
	"sync"
	"time"
)

// tokenBucket gates remote calls per spec §4.4's rate limiting rule: refill
// = rpm/60 tokens/s, capacity = rpm.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(rpm int) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	capacity := float64(rpm)
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity / 60.0,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether a token is immediately available, consuming one if
// so.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx-independent timeout d
// elapses, returning whether a token was acquired.
func (b *tokenBucket) Wait(d time.Duration) bool {
	deadline := b.now().Add(d)
	for {
		if b.Allow() {
			return true
		}
		if b.now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (b *tokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
