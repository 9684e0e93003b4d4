package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sniperbot/engine/pkg/models"
)

const (
	walletTargetStaleThreshold  = 24 * time.Hour
	walletTargetMinTrendingHits = 3
	walletTargetSignerSample    = 20
)

// TrendingFeed abstracts the external trending-token feed the smart-wallet
// list refresher samples recent signers from.
type TrendingFeed interface {
	TrendingTokens(ctx context.Context) ([]string, error)
}

// WalletTargetStore is the persistence surface the refresher reads curated
// entries from and writes its own refreshed rows back to.
type WalletTargetStore interface {
	WalletTargets() ([]models.WalletTarget, error)
	WalletTargetsStale(threshold time.Duration) (bool, error)
	ReplaceRefreshedWalletTargets(wallets []models.WalletTarget) error
}

// WalletListRefresher maintains the live smart-wallet list SmartWallet scores
// candidates against, in the tiered-list-with-refresh shape: a curated core
// plus a periodically resampled tail, both served from one in-memory list
// guarded for concurrent reads against the evaluation goroutines.
type WalletListRefresher struct {
	feed  TrendingFeed
	pool  rpcCaller
	store WalletTargetStore

	mu      sync.RWMutex
	wallets []string
}

func NewWalletListRefresher(feed TrendingFeed, pool rpcCaller, store WalletTargetStore) *WalletListRefresher {
	return &WalletListRefresher{feed: feed, pool: pool, store: store}
}

// List returns a snapshot of the current smart-wallet list for RunAll's
// SmartWallet call.
func (r *WalletListRefresher) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.wallets))
	copy(out, r.wallets)
	return out
}

// Run loads the persisted list immediately, then re-checks staleness on
// every tick of interval and refreshes when the refreshed-source rows have
// gone past walletTargetStaleThreshold.
func (r *WalletListRefresher) Run(ctx context.Context, interval time.Duration) {
	r.loadCurrent()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, err := r.store.WalletTargetsStale(walletTargetStaleThreshold)
			if err != nil {
				log.Printf("[behavior] wallet target staleness check: %v", err)
				continue
			}
			if !stale {
				continue
			}
			if err := r.Refresh(ctx); err != nil {
				log.Printf("[behavior] wallet list refresh: %v", err)
			}
		}
	}
}

func (r *WalletListRefresher) loadCurrent() {
	targets, err := r.store.WalletTargets()
	if err != nil {
		log.Printf("[behavior] load wallet targets: %v", err)
		return
	}
	r.setWallets(targets)
}

func (r *WalletListRefresher) setWallets(targets []models.WalletTarget) {
	wallets := make([]string, 0, len(targets))
	for _, t := range targets {
		wallets = append(wallets, t.Wallet)
	}
	r.mu.Lock()
	r.wallets = wallets
	r.mu.Unlock()
}

// Refresh queries the trending feed, samples recent signers of every
// trending token, retains any address appearing against at least
// walletTargetMinTrendingHits distinct tokens, rewrites the refreshed-source
// rows, and reloads the merged curated+refreshed list. A failure at any
// step is non-fatal: the previously-loaded list keeps serving SmartWallet.
func (r *WalletListRefresher) Refresh(ctx context.Context) error {
	tokens, err := r.feed.TrendingTokens(ctx)
	if err != nil {
		return fmt.Errorf("trending feed: %w", err)
	}

	hits := make(map[string]int)
	for _, mint := range tokens {
		signers, err := r.recentSigners(ctx, mint)
		if err != nil {
			continue
		}
		seen := make(map[string]bool, len(signers))
		for _, signer := range signers {
			if signer == "" || seen[signer] {
				continue
			}
			seen[signer] = true
			hits[signer]++
		}
	}

	refreshed := make([]models.WalletTarget, 0, len(hits))
	for wallet, count := range hits {
		if count < walletTargetMinTrendingHits {
			continue
		}
		refreshed = append(refreshed, models.WalletTarget{Wallet: wallet, Tier: "trending", Source: models.WalletTargetRefreshed})
	}

	if err := r.store.ReplaceRefreshedWalletTargets(refreshed); err != nil {
		return fmt.Errorf("persist refreshed wallet targets: %w", err)
	}

	r.loadCurrent()
	return nil
}

func (r *WalletListRefresher) recentSigners(ctx context.Context, mint string) ([]string, error) {
	mintParam, _ := json.Marshal(mint)
	limitParam, _ := json.Marshal(walletTargetSignerSample)
	raw, err := r.pool.WithAnalysisRetry(ctx, "getSignaturesForAddress", mintParam, limitParam)
	if err != nil {
		return nil, err
	}
	var txs []txSummary
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, err
	}
	signers := make([]string, 0, len(txs))
	for _, tx := range txs {
		signers = append(signers, tx.Signer)
	}
	return signers, nil
}
