package rpcpool

import (
	"sync/atomic"
	"time"
)

const unhealthyThreshold = 2

// endpoint is one entry of the N-endpoint pool. healthy, consecutive
// failures, and last-use are tracked with atomics so the hot path never
// blocks on a mutex just to read status.
type endpoint struct {
	url     string
	tags    map[string]bool
	bucket  *tokenBucket

	healthy     atomic.Bool
	failures    atomic.Int64
	lastUseUnix atomic.Int64 // unix nanos
}

func newEndpoint(url string, tags []string, qps float64, burst int) *endpoint {
	e := &endpoint{url: url, tags: make(map[string]bool, len(tags)), bucket: newTokenBucket(qps, burst)}
	for _, t := range tags {
		e.tags[t] = true
	}
	e.healthy.Store(true)
	return e
}

func (e *endpoint) hasTag(tag string) bool { return e.tags[tag] }

func (e *endpoint) touch() { e.lastUseUnix.Store(time.Now().UnixNano()) }

func (e *endpoint) lastUse() time.Time { return time.Unix(0, e.lastUseUnix.Load()) }

// recordSuccess clears the failure counter and marks the endpoint healthy.
func (e *endpoint) recordSuccess() {
	e.failures.Store(0)
	e.healthy.Store(true)
}

// recordFailure increments the failure counter and flips the endpoint
// unhealthy once it reaches unhealthyThreshold consecutive failures: marked
// unhealthy at ≥ 2 consecutive failures.
func (e *endpoint) recordFailure() {
	if e.failures.Add(1) >= unhealthyThreshold {
		e.healthy.Store(false)
	}
}

func (e *endpoint) isHealthy() bool { return e.healthy.Load() }
