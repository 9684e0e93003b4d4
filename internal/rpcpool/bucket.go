package rpcpool

import (
	"sync"
	"time"
)

// tokenBucket is a per-endpoint rate limiter, generalized from an earlier
// per-IP bucket to key on endpoint identity instead of client IP.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	rate     float64 // tokens added per second
	burst    float64
	lastSeen time.Time
}

func newTokenBucket(qps float64, burst int) *tokenBucket {
	b := float64(burst)
	if b <= 0 {
		b = qps
	}
	return &tokenBucket{tokens: b, rate: qps, burst: b, lastSeen: time.Now()}
}

// allow reports whether a token is available now, and if not, how long until
// one will be.
func (b *tokenBucket) allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastSeen = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	return false, time.Duration((1.0-b.tokens)/b.rate*1000) * time.Millisecond
}
