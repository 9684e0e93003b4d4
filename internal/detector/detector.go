// Package detector implements the pool-create subscription pipeline. The
// ticker-driven poll loop with a deduplication set that is periodically
// reset is modeled on a Poller.Run pattern, generalized from "poll raw
// mempool hashes" to "poll program-log subscriptions per AMM source" and
// from a plain reset map to a sliding dedup window with real eviction.
package detector

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/eventbus"
	"github.com/sniperbot/engine/pkg/models"
)

const (
	dedupWindow       = 10 * time.Minute
	initialBackoff    = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	logSubscribeMethod = "logsSubscribe"
)

// LogSource abstracts the WebSocket subscription surface C1 exposes, so
// Detector can be tested without a live socket.
type LogSource interface {
	Subscribe(ctx context.Context, source models.AMMSource) (<-chan json.RawMessage, error)
}

// Detector subscribes to pool-create logs for every configured AMM source,
// parses and deduplicates them, and publishes PoolDetected.
type Detector struct {
	sources []models.AMMSource
	logs    LogSource
	bus     *eventbus.Bus

	mu   sync.Mutex
	seen map[string]time.Time
}

func New(sources []models.AMMSource, logs LogSource, bus *eventbus.Bus) *Detector {
	return &Detector{
		sources: sources,
		logs:    logs,
		bus:     bus,
		seen:    make(map[string]time.Time),
	}
}

// Run subscribes to every configured source and blocks until ctx is
// cancelled. Each source runs its own resubscribe loop concurrently.
func (d *Detector) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, source := range d.sources {
		wg.Add(1)
		go func(source models.AMMSource) {
			defer wg.Done()
			d.runSource(ctx, source)
		}(source)
	}

	evictTicker := time.NewTicker(dedupWindow)
	defer evictTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-evictTicker.C:
			d.evictStale()
		}
	}
}

func (d *Detector) evictStale() {
	cutoff := time.Now().Add(-dedupWindow)
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, seenAt := range d.seen {
		if seenAt.Before(cutoff) {
			delete(d.seen, addr)
		}
	}
}

// runSource subscribes to one AMM source's log stream, recovering dropped
// subscriptions with exponential backoff.
func (d *Detector) runSource(ctx context.Context, source models.AMMSource) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		ch, err := d.logs.Subscribe(ctx, source)
		if err != nil {
			log.Printf("[detector] subscribe %s failed: %v (retrying in %s)", source, err, backoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		d.drain(ctx, source, ch)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[detector] subscription %s dropped, resubscribing in %s", source, backoff)
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain consumes ch until it closes (subscription dropped) or ctx is done.
func (d *Detector) drain(ctx context.Context, source models.AMMSource, ch <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			d.handleLog(source, raw)
		}
	}
}

func (d *Detector) handleLog(source models.AMMSource, raw json.RawMessage) {
	event, err := amm.ParsePoolCreate(source, raw)
	if err != nil {
		log.Printf("[detector] parse pool-create log (%s): %v", source, err)
		return
	}

	d.mu.Lock()
	_, dup := d.seen[event.PoolAddress]
	d.seen[event.PoolAddress] = time.Now()
	d.mu.Unlock()
	if dup {
		return
	}

	pool := models.DetectedPool{
		PoolID:      event.PoolAddress,
		Source:      source,
		PoolAddress: event.PoolAddress,
		BaseMint:    event.BaseMint,
		QuoteMint:   event.QuoteMint,
		Creator:     event.Creator,
		DetectedAt:  time.Now(),
		Slot:        uint64(event.Slot),
	}
	d.bus.Publish(models.TopicPoolDetected, pool)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
