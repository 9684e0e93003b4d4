// Package behavior implements the behavioral analyzers: five additive signal
// contributors that run concurrently with the security checks during the
// observation window. The same-amount tolerance clustering in WashTrade is
// modeled on a fee-tolerant subset-sum matcher pattern
// (CalculateAnonSet/hasMatchingInputSubsetMitM), narrowed from an NP-hard
// subset-sum search to a linear same-amount bucket scan since wash-trading
// only needs a tolerance cluster, not a linkage proof. CoordinatedLaunch's
// funding-source trace is modeled on the shape of a hop-by-hop flow tracer,
// narrowed to a single hop (funder of each buyer, not a full DAG).
package behavior

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/sniperbot/engine/internal/cache"
	"github.com/sniperbot/engine/pkg/models"
)

const (
	bundleMaxSignatures = 100
	washSampleSize      = 5
	organicSampleSize   = 10
	coordinatedMaxBuyers = 5
	sameAmountTolerance = 0.05 // ±5%
)

// rpcCaller is the subset of rpcpool.Pool this package depends on.
type rpcCaller interface {
	SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
	WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
}

// bondingCurveAddress derives the bonding-curve account deterministically
// from the base mint. Real derivation is program-specific (a PDA); this
// models the contract every variant satisfies without depending on the
// (absent from the retained stack) Solana SDK's PDA-derivation helpers.
func bondingCurveAddress(baseMint string) string {
	return "bonding-curve:" + baseMint
}

// txSummary is the normalized shape of one sampled bonding-curve or pool
// transaction, enough for every analyzer below.
type txSummary struct {
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
	AmountIn  int64  `json:"amountIn"`
	Slot      int64  `json:"slot"`
}

// Analyzer runs every C5 check against a candidate pool.
type Analyzer struct {
	pool     rpcCaller
	sigCache *cache.SignatureListCache
}

func NewAnalyzer(pool rpcCaller, sigCache *cache.SignatureListCache) *Analyzer {
	return &Analyzer{pool: pool, sigCache: sigCache}
}

// RunAll fans out every analyzer concurrently and assembles the bundle,
// absorbing their latency alongside the security checks.
func (a *Analyzer) RunAll(ctx context.Context, candidate models.DetectedPool, smartWallets []string) models.AnalyzerResults {
	var out models.AnalyzerResults
	var wg sync.WaitGroup
	wg.Add(5)

	go func() { defer wg.Done(); out.Bundle = a.BundleLaunch(ctx, candidate) }()
	go func() { defer wg.Done(); out.Wash = a.WashTrade(ctx, candidate) }()
	go func() { defer wg.Done(); out.Organic = a.OrganicBuyer(ctx, candidate) }()
	go func() { defer wg.Done(); out.Coordinated = a.CoordinatedLaunch(ctx, candidate) }()
	go func() { defer wg.Done(); out.SmartWallet = a.SmartWallet(ctx, candidate, smartWallets) }()

	wg.Wait()
	return out
}

func (a *Analyzer) fetchSignatures(ctx context.Context, account string, limit int) ([]txSummary, error) {
	if cached, ok := a.sigCache.Get(account); ok {
		return decodeSummaries(cached), nil
	}

	limitParam, _ := json.Marshal(limit)
	acctParam, _ := json.Marshal(account)
	raw, err := a.pool.WithAnalysisRetry(ctx, "getSignaturesForAddress", acctParam, limitParam)
	if err != nil {
		return nil, err
	}
	var txs []txSummary
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, err
	}

	encoded := make([]string, len(txs))
	for i, tx := range txs {
		b, _ := json.Marshal(tx)
		encoded[i] = string(b)
	}
	a.sigCache.Put(account, encoded)
	return txs, nil
}

func decodeSummaries(encoded []string) []txSummary {
	out := make([]txSummary, 0, len(encoded))
	for _, e := range encoded {
		var tx txSummary
		if json.Unmarshal([]byte(e), &tx) == nil {
			out = append(out, tx)
		}
	}
	return out
}

// BundleLaunch pulls up to bundleMaxSignatures from the bonding-curve
// account and derives organic-demand proxies.
func (a *Analyzer) BundleLaunch(ctx context.Context, candidate models.DetectedPool) models.BundleLaunchResult {
	account := bondingCurveAddress(candidate.BaseMint)
	txs, err := a.fetchSignatures(ctx, account, bundleMaxSignatures)
	if err != nil || len(txs) == 0 {
		return a.bundleFallback(ctx, candidate)
	}

	slots := make(map[int64]int)
	for _, tx := range txs {
		slots[tx.Slot]++
	}
	sameSlotCount := 0
	for _, c := range slots {
		if c > sameSlotCount {
			sameSlotCount = c
		}
	}

	var graduationTimeS float64
	if len(txs) > 1 {
		graduationTimeS = float64(txs[0].Slot-txs[len(txs)-1].Slot) * 0.4 // ~400ms/slot
	}

	result := models.BundleLaunchResult{
		TxCount:         len(txs),
		SameSlotCount:   sameSlotCount,
		GraduationTimeS: graduationTimeS,
		EarlyTxCount:    minInt(len(txs), 20),
		UniqueSlots:     len(slots),
	}
	if graduationTimeS > 0 {
		result.TxVelocity = float64(len(txs)) / graduationTimeS
	}
	result.Penalty = bundlePenalty(result)
	return result
}

func bundlePenalty(r models.BundleLaunchResult) int {
	penalty := 0
	switch {
	case r.TxCount < 15:
		penalty = -15
	case r.TxCount < 50:
		penalty = -10
	case r.TxCount < 100:
		penalty = -5
	}
	if r.SameSlotCount > 5 && penalty < -10 {
		penalty = -10
	}
	return penalty
}

// bundleFallback handles a pruned bonding-curve account with a single
// mint-level RPC estimate.
func (a *Analyzer) bundleFallback(ctx context.Context, candidate models.DetectedPool) models.BundleLaunchResult {
	mintParam, _ := json.Marshal(candidate.BaseMint)
	raw, err := a.pool.WithAnalysisRetry(ctx, "getMintGraduationEstimate", mintParam)
	if err != nil {
		return models.BundleLaunchResult{}
	}
	var est struct {
		GraduationTimeS float64 `json:"graduationTimeS"`
	}
	if json.Unmarshal(raw, &est) != nil {
		return models.BundleLaunchResult{}
	}
	return models.BundleLaunchResult{GraduationTimeS: est.GraduationTimeS}
}

// WashTrade samples up to washSampleSize recent bonding-curve transactions
// and computes signer concentration plus a same-amount tolerance cluster.
func (a *Analyzer) WashTrade(ctx context.Context, candidate models.DetectedPool) models.WashTradeResult {
	account := bondingCurveAddress(candidate.BaseMint)
	// The signature cache is keyed by account only and shared with
	// BundleLaunch, so fetch the larger list and sample from its head.
	txs, err := a.fetchSignatures(ctx, account, bundleMaxSignatures)
	if err != nil || len(txs) == 0 {
		return models.WashTradeResult{}
	}
	if len(txs) > washSampleSize {
		txs = txs[:washSampleSize]
	}

	bySigner := make(map[string]int)
	for _, tx := range txs {
		bySigner[tx.Signer]++
	}
	topSignerCount := 0
	for _, c := range bySigner {
		if c > topSignerCount {
			topSignerCount = c
		}
	}
	concentration := float64(topSignerCount) / float64(len(txs)) * 100

	sameAmountRatio := largestToleranceCluster(txs) / float64(len(txs)) * 100

	result := models.WashTradeResult{ConcentrationPct: concentration, SameAmountRatio: sameAmountRatio}
	result.Penalty = washPenalty(result)
	return result
}

// largestToleranceCluster returns the size of the largest group of
// transactions whose AmountIn values fall within ±sameAmountTolerance of one
// another — the linear analogue of a fee-tolerant subset-sum match window.
func largestToleranceCluster(txs []txSummary) float64 {
	best := 0
	for i := range txs {
		clusterSize := 0
		for j := range txs {
			if withinTolerance(txs[i].AmountIn, txs[j].AmountIn, sameAmountTolerance) {
				clusterSize++
			}
		}
		if clusterSize > best {
			best = clusterSize
		}
	}
	return float64(best)
}

func withinTolerance(a, b int64, tolerance float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	ref := math.Max(math.Abs(float64(a)), math.Abs(float64(b)))
	if ref == 0 {
		return true
	}
	return math.Abs(float64(a-b))/ref <= tolerance
}

func washPenalty(r models.WashTradeResult) int {
	penalty := 0
	switch {
	case r.ConcentrationPct >= 50:
		penalty -= 10
	case r.ConcentrationPct >= 40:
		penalty -= 5
	}
	if r.SameAmountRatio >= 30 {
		penalty -= 10
	}
	if penalty < -20 {
		penalty = -20
	}
	return penalty
}

// OrganicBuyer samples up to organicSampleSize recent pool transactions and
// counts unique non-creator signers.
func (a *Analyzer) OrganicBuyer(ctx context.Context, candidate models.DetectedPool) models.OrganicBuyerResult {
	txs, err := a.fetchSignatures(ctx, candidate.PoolAddress, organicSampleSize)
	if err != nil || len(txs) == 0 {
		return models.OrganicBuyerResult{}
	}

	bySigner := make(map[string]int)
	for _, tx := range txs {
		if tx.Signer == candidate.Creator {
			continue
		}
		bySigner[tx.Signer]++
	}

	uniqueSigners := len(bySigner)
	maxSingle := 0
	for _, c := range bySigner {
		if c > maxSingle {
			maxSingle = c
		}
	}
	var singleBuyerPct float64
	if len(txs) > 0 {
		singleBuyerPct = float64(maxSingle) / float64(len(txs)) * 100
	}

	result := models.OrganicBuyerResult{UniqueSigners: uniqueSigners, SingleBuyerPct: singleBuyerPct}
	result.Delta = organicDelta(result)
	return result
}

func organicDelta(r models.OrganicBuyerResult) int {
	delta := 0
	switch {
	case r.UniqueSigners < 2:
		delta = -10
	case r.UniqueSigners < 3:
		delta = -5
	case r.UniqueSigners >= 5:
		delta = 5
	}
	if r.SingleBuyerPct > 40 && delta > -5 {
		delta = -5
	}
	return delta
}

// fundingSource traces the oldest incoming transaction to wallet and
// returns its counterpart address — a single-hop narrowing of a fund
// tracer's multi-hop DAG walk.
func (a *Analyzer) fundingSource(ctx context.Context, wallet string) (string, error) {
	walletParam, _ := json.Marshal(wallet)
	raw, err := a.pool.WithAnalysisRetry(ctx, "getOldestIncomingTransfer", walletParam)
	if err != nil {
		return "", err
	}
	var transfer struct {
		FromAddress string `json:"fromAddress"`
	}
	if err := json.Unmarshal(raw, &transfer); err != nil {
		return "", err
	}
	return transfer.FromAddress, nil
}

// CoordinatedLaunch identifies the first coordinatedMaxBuyers unique
// bonding-curve buyers and compares their funding sources to the creator's.
func (a *Analyzer) CoordinatedLaunch(ctx context.Context, candidate models.DetectedPool) models.CoordinatedLaunchResult {
	account := bondingCurveAddress(candidate.BaseMint)
	txs, err := a.fetchSignatures(ctx, account, bundleMaxSignatures)
	if err != nil {
		return models.CoordinatedLaunchResult{}
	}

	buyers := make([]string, 0, coordinatedMaxBuyers)
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.Signer == "" || seen[tx.Signer] {
			continue
		}
		seen[tx.Signer] = true
		buyers = append(buyers, tx.Signer)
		if tx.Signer == candidate.Creator {
			// creator self-buy recorded separately below
		}
		if len(buyers) >= coordinatedMaxBuyers {
			break
		}
	}

	creatorSelfBuy := seen[candidate.Creator]

	creatorFunding, err := a.fundingSource(ctx, candidate.Creator)
	if err != nil {
		return models.CoordinatedLaunchResult{CreatorSelfBuy: creatorSelfBuy}
	}

	sharedFunders := 0
	for _, buyer := range buyers {
		if buyer == candidate.Creator {
			continue
		}
		funding, err := a.fundingSource(ctx, buyer)
		if err == nil && funding != "" && funding == creatorFunding {
			sharedFunders++
		}
	}

	result := models.CoordinatedLaunchResult{CreatorSelfBuy: creatorSelfBuy, SharedFunderCount: sharedFunders}
	result.Penalty = coordinatedPenalty(result)
	return result
}

func coordinatedPenalty(r models.CoordinatedLaunchResult) int {
	penalty := 0
	if r.CreatorSelfBuy {
		penalty -= 15
	}
	switch {
	case r.SharedFunderCount >= 2:
		penalty -= 10
	case r.SharedFunderCount == 1:
		penalty -= 5
	}
	if penalty < -20 {
		penalty = -20
	}
	return penalty
}

// SmartWallet derives each curated wallet's associated token account for
// candidate's mint and issues one batched account-info call.
func (a *Analyzer) SmartWallet(ctx context.Context, candidate models.DetectedPool, smartWallets []string) models.SmartWalletResult {
	if len(smartWallets) == 0 {
		return models.SmartWalletResult{}
	}

	atas := make([]string, len(smartWallets))
	for i, w := range smartWallets {
		atas[i] = associatedTokenAccount(w, candidate.BaseMint)
	}

	atasParam, _ := json.Marshal(atas)
	raw, err := a.pool.WithAnalysisRetry(ctx, "getMultipleAccounts", atasParam)
	if err != nil {
		return models.SmartWalletResult{}
	}
	var balances []struct {
		Amount int64 `json:"amount"`
	}
	if err := json.Unmarshal(raw, &balances); err != nil {
		return models.SmartWalletResult{}
	}

	holding := make([]string, 0)
	for i, bal := range balances {
		if i < len(smartWallets) && bal.Amount > 0 {
			holding = append(holding, smartWallets[i])
		}
	}
	if len(holding) == 0 {
		return models.SmartWalletResult{}
	}

	tier, bonus := smartWalletTier(len(holding), len(smartWallets))
	return models.SmartWalletResult{HighestTier: tier, Bonus: bonus, HoldingWallets: holding}
}

// smartWalletTier maps the fraction of the curated list now holding the
// candidate mint to a tier: elite/strong/consistent bonuses.
func smartWalletTier(holding, total int) (string, int) {
	if total == 0 {
		return "", 0
	}
	frac := float64(holding) / float64(total)
	switch {
	case frac >= 0.5:
		return "elite", 10
	case frac >= 0.25:
		return "strong", 7
	default:
		return "consistent", 5
	}
}

// associatedTokenAccount is a pure local computation in production (a PDA
// derivation); modeled here as the deterministic pairing the real derivation
// guarantees, since no SDK implementing it is available in the retained stack.
func associatedTokenAccount(wallet, mint string) string {
	return "ata:" + wallet + ":" + mint
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
