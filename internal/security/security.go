// Package security implements the security check suite: five independent
// checks fanned out concurrently, each on its own timeout,
// contributing "unknown" rather than a silent pass/fail when it cannot
// complete in time. The fan-out-with-timeout shape is stdlib
// goroutines+context+sync.WaitGroup; no example repo in the retained stack
// carries an errgroup-style dependency, so this stays on the standard
// library by necessity rather than by default.
package security

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/pkg/models"
)

const (
	checkTimeout        = 3 * time.Second
	honeypotProbeAmount = 100_000 // lamports
	honeypotImpactCeil  = 0.50
)

// rpcCaller is the subset of rpcpool.Pool this package depends on; narrowing
// to an interface keeps the suite testable against a fake without a live pool.
type rpcCaller interface {
	amm.RawLogFetcher
	WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
}

// Checker runs the full C4 suite against one candidate pool.
type Checker struct {
	pool          rpcCaller
	httpClient    *http.Client
	reputationURL string
}

func NewChecker(pool rpcCaller, reputationURL string) *Checker {
	return &Checker{
		pool:          pool,
		httpClient:    &http.Client{Timeout: checkTimeout},
		reputationURL: reputationURL,
	}
}

// Run fans out every check concurrently and assembles the combined result.
// A check that misses checkTimeout contributes its zero value plus the
// corresponding *Unknown flag, never a default pass or fail.
func (c *Checker) Run(ctx context.Context, candidate models.DetectedPool) models.SecurityChecks {
	var out models.SecurityChecks
	var wg sync.WaitGroup
	wg.Add(5)

	go func() { defer wg.Done(); c.checkAuthorities(ctx, candidate, &out) }()
	go func() { defer wg.Done(); c.checkHoneypot(ctx, candidate, &out) }()
	go func() { defer wg.Done(); c.checkLiquidity(ctx, candidate, &out) }()
	go func() { defer wg.Done(); c.checkHolders(ctx, candidate, &out) }()
	go func() { defer wg.Done(); c.checkReputation(ctx, candidate, &out) }()

	wg.Wait()
	return out
}

func withCheckTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, checkTimeout)
}

type mintAuthorityAccount struct {
	MintAuthority   *string `json:"mintAuthority"`
	FreezeAuthority *string `json:"freezeAuthority"`
}

func (c *Checker) checkAuthorities(ctx context.Context, candidate models.DetectedPool, out *models.SecurityChecks) {
	ctx, cancel := withCheckTimeout(ctx)
	defer cancel()

	mintParam, _ := json.Marshal(candidate.BaseMint)
	raw, err := c.pool.WithAnalysisRetry(ctx, "getAccountInfo", mintParam)
	if err != nil {
		out.MintAuthorityUnknown = true
		out.FreezeAuthorityUnknown = true
		return
	}
	var acct mintAuthorityAccount
	if err := json.Unmarshal(raw, &acct); err != nil {
		out.MintAuthorityUnknown = true
		out.FreezeAuthorityUnknown = true
		return
	}
	out.MintAuthorityRevoked = acct.MintAuthority == nil
	out.FreezeAuthorityRevoked = acct.FreezeAuthority == nil
}

type quoteResult struct {
	OutAmount   int64   `json:"outAmount"`
	PriceImpact float64 `json:"priceImpactPct"`
}

// checkHoneypot quotes native→token then token→native with the quoted
// output. A missing forward route for a brand-new token is benefit-of-doubt,
// not a honeypot signal.
func (c *Checker) checkHoneypot(ctx context.Context, candidate models.DetectedPool, out *models.SecurityChecks) {
	ctx, cancel := withCheckTimeout(ctx)
	defer cancel()

	forward, err := c.quote(ctx, candidate, candidate.QuoteMint, candidate.BaseMint, honeypotProbeAmount)
	if err != nil {
		out.HoneypotVerified = false
		out.IsHoneypot = false
		return
	}

	reverse, err := c.quote(ctx, candidate, candidate.BaseMint, candidate.QuoteMint, forward.OutAmount)
	if err != nil {
		out.IsHoneypot = true
		out.HoneypotVerified = true
		return
	}
	if reverse.PriceImpact > honeypotImpactCeil {
		out.IsHoneypot = true
		out.HoneypotVerified = true
		return
	}
	out.IsHoneypot = false
	out.HoneypotVerified = true
}

func (c *Checker) quote(ctx context.Context, candidate models.DetectedPool, inMint, outMint string, amountIn int64) (quoteResult, error) {
	_, err := amm.BuildDirectSwap(candidate.Source, candidate.PoolAddress, inMint == candidate.QuoteMint, amountIn, 9500)
	if err != nil {
		return quoteResult{}, err
	}
	params, _ := json.Marshal(struct {
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		AmountIn   int64  `json:"amountIn"`
	}{inMint, outMint, amountIn})
	raw, err := c.pool.WithAnalysisRetry(ctx, "quoteSwap", params)
	if err != nil {
		return quoteResult{}, err
	}
	var q quoteResult
	if err := json.Unmarshal(raw, &q); err != nil {
		return quoteResult{}, err
	}
	return q, nil
}

type lpSupplyInfo struct {
	TotalSupply int64 `json:"totalSupply"`
	BurnedAmount int64 `json:"burnedAmount"`
	LockedAmount int64 `json:"lockedAmount"`
}

func (c *Checker) checkLiquidity(ctx context.Context, candidate models.DetectedPool, out *models.SecurityChecks) {
	ctx, cancel := withCheckTimeout(ctx)
	defer cancel()

	reserves, err := amm.ReadReserves(ctx, candidate.Source, c.pool, candidate.PoolAddress)
	if err != nil {
		out.LiquidityUnknown = true
		out.LPUnknown = true
		return
	}
	out.LiquidityNative = float64(reserves.QuoteAmount)
	out.LiquidityUSD = reserves.Price() * float64(reserves.BaseAmount)

	poolParam, _ := json.Marshal(candidate.PoolAddress)
	raw, err := c.pool.WithAnalysisRetry(ctx, "getLPSupplyInfo", poolParam)
	if err != nil {
		out.LPUnknown = true
		return
	}
	var lp lpSupplyInfo
	if err := json.Unmarshal(raw, &lp); err != nil || lp.TotalSupply == 0 {
		out.LPUnknown = true
		return
	}
	out.LPBurned = lp.BurnedAmount == lp.TotalSupply
	out.LPLockedPct = float64(lp.BurnedAmount+lp.LockedAmount) / float64(lp.TotalSupply) * 100
}

type holderPage struct {
	Holders []struct {
		Owner  string `json:"owner"`
		Amount int64  `json:"amount"`
	} `json:"holders"`
	TotalSupply int64 `json:"totalSupply"`
	Partial     bool  `json:"partial"`
}

func (c *Checker) checkHolders(ctx context.Context, candidate models.DetectedPool, out *models.SecurityChecks) {
	ctx, cancel := withCheckTimeout(ctx)
	defer cancel()

	mintParam, _ := json.Marshal(candidate.BaseMint)
	raw, err := c.pool.WithAnalysisRetry(ctx, "getTokenLargestAccounts", mintParam)
	if err != nil {
		out.HolderDataPartial = true
		return
	}
	var page holderPage
	if err := json.Unmarshal(raw, &page); err != nil {
		out.HolderDataPartial = true
		return
	}
	out.HolderCount = len(page.Holders)
	out.HolderDataPartial = page.Partial
	if page.TotalSupply > 0 && len(page.Holders) > 0 {
		out.TopHolderPct = float64(page.Holders[0].Amount) / float64(page.TotalSupply) * 100
	}
}

type reputationPayload struct {
	Score *int     `json:"score"`
	Risks []string `json:"risks"`
}

// checkReputation fetches an external rug-reporting score; any failure
// yields an undefined (nil) score, never a veto by itself.
func (c *Checker) checkReputation(ctx context.Context, candidate models.DetectedPool, out *models.SecurityChecks) {
	if c.reputationURL == "" {
		return
	}
	ctx, cancel := withCheckTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.reputationURL+"?mint="+candidate.BaseMint, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	var payload reputationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return
	}
	out.RugcheckScore = payload.Score
	out.RugcheckRisks = payload.Risks
}
