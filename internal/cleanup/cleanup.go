// Package cleanup implements the post-trade account sweep: a periodic pass
// over the trading wallet's token accounts plus a targeted pass triggered
// right after a position fully exits, reclaiming rent from accounts nothing
// holds open anymore. The ticker-driven idle-eviction shape is modeled on a
// cleanupLoop pattern, here repurposed from idle IP buckets to idle token
// accounts.
package cleanup

import (
	"context"
	"log"
	"time"
)

const (
	sweepInterval = 15 * time.Minute
	nativeMint    = "So11111111111111111111111111111111111111112"
	defaultBatch  = 10
)

// TokenAccount is one SPL-style token account owned by the trading wallet.
type TokenAccount struct {
	Address string
	Mint    string
	Balance int64
	Frozen  bool
}

// AccountLister enumerates the trading wallet's token accounts.
type AccountLister interface {
	ListTokenAccounts(ctx context.Context, wallet string) ([]TokenAccount, error)
}

// OpenPositionChecker reports whether a mint is currently held in an open
// position; satisfied by internal/position.Manager.
type OpenPositionChecker interface {
	IsMintOpen(mint string) bool
}

// AccountCloser burns any residual balance and closes the account to
// reclaim rent, batched per call.
type AccountCloser interface {
	BurnAndClose(ctx context.Context, accounts []TokenAccount) error
}

// Sweeper runs the periodic and post-exit cleanup passes.
type Sweeper struct {
	lister    AccountLister
	positions OpenPositionChecker
	closer    AccountCloser
	wallet    string
	batchSize int
}

func NewSweeper(lister AccountLister, positions OpenPositionChecker, closer AccountCloser, wallet string, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = defaultBatch
	}
	return &Sweeper{lister: lister, positions: positions, closer: closer, wallet: wallet, batchSize: batchSize}
}

// Run blocks, sweeping every sweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepMint runs a targeted pass for a single mint immediately after a full
// exit, instead of waiting for the next periodic sweep.
func (s *Sweeper) SweepMint(ctx context.Context, mint string) {
	accounts, err := s.lister.ListTokenAccounts(ctx, s.wallet)
	if err != nil {
		log.Printf("[cleanup] targeted sweep for %s: list accounts: %v", mint, err)
		return
	}
	var target []TokenAccount
	for _, acct := range accounts {
		if acct.Mint == mint {
			target = append(target, acct)
		}
	}
	s.closeEligible(ctx, target)
}

func (s *Sweeper) sweep(ctx context.Context) {
	accounts, err := s.lister.ListTokenAccounts(ctx, s.wallet)
	if err != nil {
		log.Printf("[cleanup] periodic sweep: list accounts: %v", err)
		return
	}
	s.closeEligible(ctx, accounts)
}

// eligible reports whether an account may be closed: not the native-wrapped
// mint, not frozen, and not currently held in an open position. Re-checked
// immediately before the close call, not just at listing time, to avoid a
// race with a buy landing on the same mint between the two.
func (s *Sweeper) eligible(acct TokenAccount) bool {
	if acct.Mint == nativeMint || acct.Frozen {
		return false
	}
	return !s.positions.IsMintOpen(acct.Mint)
}

func (s *Sweeper) closeEligible(ctx context.Context, accounts []TokenAccount) {
	var batch []TokenAccount
	for _, acct := range accounts {
		if !s.eligible(acct) {
			continue
		}
		batch = append(batch, acct)
		if len(batch) == s.batchSize {
			s.closeBatch(ctx, batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		s.closeBatch(ctx, batch)
	}
}

func (s *Sweeper) closeBatch(ctx context.Context, batch []TokenAccount) {
	// Re-check eligibility one more time right before the close call: a
	// position may have opened on one of these mints since the list was
	// taken at the top of this sweep.
	var confirmed []TokenAccount
	for _, acct := range batch {
		if s.eligible(acct) {
			confirmed = append(confirmed, acct)
		}
	}
	if len(confirmed) == 0 {
		return
	}
	if err := s.closer.BurnAndClose(ctx, confirmed); err != nil {
		log.Printf("[cleanup] close batch of %d accounts: %v", len(confirmed), err)
	}
}
