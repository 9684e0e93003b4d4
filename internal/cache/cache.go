// Package cache implements the blockhash, wallet-balance, and bonding-curve
// signature caches. Only the signature cache is built on
// hashicorp/golang-lru/v2, with a stored timestamp giving each entry its TTL;
// the blockhash cache is a single mutex-guarded value refreshed on access,
// and the balance cache is an atomic value refreshed in the background.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sniperbot/engine/internal/rpcpool"
)

const (
	blockhashTTL     = 10 * time.Second
	balanceRefresh   = 15 * time.Second
	signatureListTTL = 60 * time.Second
)

// BlockhashCache holds the single most recent blockhash, refreshing it on
// access once it is older than blockhashTTL. Falls back to the analysis
// pool if the primary fetch fails.
type BlockhashCache struct {
	pool *rpcpool.Pool

	mu        sync.Mutex
	hash      string
	fetchedAt time.Time
}

func NewBlockhashCache(pool *rpcpool.Pool) *BlockhashCache {
	return &BlockhashCache{pool: pool}
}

// Get returns a blockhash no older than blockhashTTL, refreshing through the
// pool when stale.
func (c *BlockhashCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hash != "" && time.Since(c.fetchedAt) < blockhashTTL {
		return c.hash, nil
	}

	raw, err := c.pool.SendPrimary(ctx, "getLatestBlockhash")
	if err != nil {
		raw, err = c.pool.WithAnalysisRetry(ctx, "getLatestBlockhash")
		if err != nil {
			if c.hash != "" {
				// stale-on-error: better than blocking the hot path
				return c.hash, nil
			}
			return "", err
		}
	}

	hash, parseErr := parseBlockhash(raw)
	if parseErr != nil {
		return "", parseErr
	}
	c.hash = hash
	c.fetchedAt = time.Now()
	return c.hash, nil
}

// BalanceCache periodically refreshes the wallet's native balance in the
// background; reads never block on I/O — lock-free by construction.
type BalanceCache struct {
	pool   *rpcpool.Pool
	wallet string

	balance atomic.Int64 // lamports
	stale   atomic.Bool  // true once a refresh has failed

	stop chan struct{}
}

func NewBalanceCache(pool *rpcpool.Pool, wallet string) *BalanceCache {
	b := &BalanceCache{pool: pool, wallet: wallet, stop: make(chan struct{})}
	go b.refreshLoop()
	return b
}

func (b *BalanceCache) refreshLoop() {
	ticker := time.NewTicker(balanceRefresh)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-ticker.C:
			b.refreshOnce(ctx)
		case <-b.stop:
			return
		}
	}
}

func (b *BalanceCache) refreshOnce(ctx context.Context) {
	raw, err := b.pool.WithAnalysisRetry(ctx, "getBalance")
	if err != nil {
		b.stale.Store(true)
		return
	}
	lamports, parseErr := parseBalance(raw)
	if parseErr != nil {
		b.stale.Store(true)
		return
	}
	b.balance.Store(lamports)
	b.stale.Store(false)
}

// Balance returns the last-known balance and whether it is stale (the most
// recent background refresh failed).
func (b *BalanceCache) Balance() (lamports int64, stale bool) {
	return b.balance.Load(), b.stale.Load()
}

func (b *BalanceCache) Close() { close(b.stop) }

// SignatureListCache caches a bonding-curve account's recent signature list
// for signatureListTTL, shared between the bundled-launch and wash-trading
// analyzers so each pool is fetched at most once per window.
type SignatureListCache struct {
	lru *lru.Cache[string, sigEntry]
}

type sigEntry struct {
	signatures []string
	fetchedAt  time.Time
}

func NewSignatureListCache(size int) *SignatureListCache {
	l, _ := lru.New[string, sigEntry](size)
	return &SignatureListCache{lru: l}
}

// Get returns the cached signature list for account if still fresh.
func (c *SignatureListCache) Get(account string) ([]string, bool) {
	entry, ok := c.lru.Get(account)
	if !ok || time.Since(entry.fetchedAt) >= signatureListTTL {
		return nil, false
	}
	return entry.signatures, true
}

func (c *SignatureListCache) Put(account string, signatures []string) {
	c.lru.Add(account, sigEntry{signatures: signatures, fetchedAt: time.Now()})
}
