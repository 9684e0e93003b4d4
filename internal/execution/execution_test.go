package execution

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/rpcpool"
	"github.com/sniperbot/engine/pkg/models"
)

type fakePool struct {
	confirmResults []rpcpool.ConfirmResult
	broadcastErr   error
	calls          int
	reserves       json.RawMessage
}

func (f *fakePool) SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	if method == "getAccountInfo" && f.reserves != nil {
		return f.reserves, nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakePool) WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakePool) BroadcastSend(ctx context.Context, rawTx []byte) (string, error) {
	return "sig", f.broadcastErr
}

func (f *fakePool) Confirm(ctx context.Context, signature string, rawTx []byte, rebroadcast bool, interval time.Duration) rpcpool.ConfirmResult {
	idx := f.calls
	if idx >= len(f.confirmResults) {
		idx = len(f.confirmResults) - 1
	}
	f.calls++
	return f.confirmResults[idx]
}

type fakeBlockhash struct{ hash string }

func (f *fakeBlockhash) Get(ctx context.Context) (string, error) { return f.hash, nil }

func testSigner(t *testing.T) *WalletSigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := NewWalletSigner(priv)
	if err != nil {
		t.Fatalf("new wallet signer: %v", err)
	}
	return s
}

func buyOrder() Order {
	return Order{
		Side:        SideBuy,
		Source:      models.SourcePumpSwap,
		PoolAddress: "Pool1",
		InputMint:   "So11111111111111111111111111111111111111112",
		OutputMint:  "Mint1",
		AmountIn:    1_000_000,
		SlippageBps: 9500,
	}
}

func TestExecuteSucceedsOnFirstConfirm(t *testing.T) {
	pool := &fakePool{confirmResults: []rpcpool.ConfirmResult{{Confirmed: true, Slot: 100}}}
	eng := New(pool, testSigner(t), nil, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 2, SlippageStepBps: 500}, false)

	result := eng.Execute(context.Background(), buyOrder())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Fills) != 1 || result.Fills[0].Route != routeDirect {
		t.Fatalf("expected one direct fill, got %+v", result.Fills)
	}
}

func TestExecuteRetriesWithEscalatedSlippageOnTimeout(t *testing.T) {
	pool := &fakePool{confirmResults: []rpcpool.ConfirmResult{
		{Confirmed: false},
		{Confirmed: true, Slot: 200},
	}}
	eng := New(pool, testSigner(t), nil, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 2, SlippageStepBps: 500}, false)

	result := eng.Execute(context.Background(), buyOrder())
	if !result.Success {
		t.Fatalf("expected eventual success after retry, got %+v", result)
	}
	if pool.calls != 2 {
		t.Fatalf("expected two confirm attempts, got %d", pool.calls)
	}
}

func TestExecuteSurfacesErrorOnLastAttempt(t *testing.T) {
	pool := &fakePool{confirmResults: []rpcpool.ConfirmResult{
		{Confirmed: false, Err: errors.New("on-chain failure")},
	}}
	eng := New(pool, testSigner(t), nil, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 0, SlippageStepBps: 500, ConfirmDeadlineS: 30}, false)

	result := eng.Execute(context.Background(), buyOrder())
	if result.Success {
		t.Fatal("expected failure to propagate after exhausting retries")
	}
	if !result.OnChainFailure {
		t.Fatalf("expected on-chain failure classification, got %+v", result)
	}
}

func TestExecuteDryRunSkipsBroadcastOnBuy(t *testing.T) {
	pool := &fakePool{confirmResults: []rpcpool.ConfirmResult{{Confirmed: false, Err: errors.New("must not be reached")}}}
	eng := New(pool, testSigner(t), nil, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 0}, true)

	result := eng.Execute(context.Background(), buyOrder())
	if !result.Success || result.Signature != "dry-run" {
		t.Fatalf("expected simulated dry-run success, got %+v", result)
	}
	if pool.calls != 0 {
		t.Fatalf("expected no confirm calls in dry-run mode, got %d", pool.calls)
	}
}

type fakeAggregator struct {
	ix  amm.SwapInstruction
	out int64
	err error
}

func (f *fakeAggregator) Quote(ctx context.Context, inMint, outMint string, amountIn int64, slippageBps int) (amm.SwapInstruction, int64, error) {
	return f.ix, f.out, f.err
}

func TestDiscoverRouteSellCyclesDirectAggregatorDirect(t *testing.T) {
	order := Order{Side: SideSell, Source: models.SourcePumpSwap, PoolAddress: "Pool1", AmountIn: 1000, SlippageBps: 9500}
	aggregator := &fakeAggregator{ix: amm.SwapInstruction{ProgramID: "agg"}, out: 4200}

	route0, _, _, err := discoverRoute(context.Background(), aggregator, order, 0)
	if err != nil || route0 != routeDirect {
		t.Fatalf("attempt 0: expected direct route, got %s err=%v", route0, err)
	}
	route1, _, out1, err := discoverRoute(context.Background(), aggregator, order, 1)
	if err != nil || route1 != routeAggregator {
		t.Fatalf("attempt 1: expected aggregator route, got %s err=%v", route1, err)
	}
	if out1 != aggregator.out {
		t.Fatalf("attempt 1: expected the aggregator's quoted amount %d, got %d", aggregator.out, out1)
	}
	route2, _, _, err := discoverRoute(context.Background(), aggregator, order, 2)
	if err != nil || route2 != routeDirect {
		t.Fatalf("attempt 2: expected direct route again, got %s err=%v", route2, err)
	}
}

func TestDiscoverRouteBuyAlwaysDirect(t *testing.T) {
	order := buyOrder()
	for attempt := 0; attempt < 3; attempt++ {
		route, _, _, err := discoverRoute(context.Background(), nil, order, attempt)
		if err != nil || route != routeDirect {
			t.Fatalf("buy attempt %d: expected direct route, got %s err=%v", attempt, route, err)
		}
	}
}

func TestExecuteDirectRouteOutputComesFromReserves(t *testing.T) {
	pool := &fakePool{
		confirmResults: []rpcpool.ConfirmResult{{Confirmed: true, Slot: 100}},
		reserves:       json.RawMessage(`{"baseAmount":1000000000,"quoteAmount":500000000}`),
	}
	eng := New(pool, testSigner(t), nil, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 0}, false)

	result := eng.Execute(context.Background(), buyOrder())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	want, err := amm.EstimateSwapOutput(amm.Reserves{BaseAmount: 1_000_000_000, QuoteAmount: 500_000_000}, true, buyOrder().AmountIn)
	if err != nil {
		t.Fatalf("estimate swap output: %v", err)
	}
	if result.OutputAmount != want || result.OutputAmount == buyOrder().AmountIn {
		t.Fatalf("expected a reserves-derived output amount %d, got %d", want, result.OutputAmount)
	}
	if result.Fills[0].OutputAmount != result.OutputAmount {
		t.Fatalf("expected the fill to carry the same output amount, got %+v", result.Fills[0])
	}
}

func TestExecuteAggregatorRouteOutputComesFromQuote(t *testing.T) {
	pool := &fakePool{confirmResults: []rpcpool.ConfirmResult{
		{Confirmed: false},
		{Confirmed: true, Slot: 200},
	}}
	aggregator := &fakeAggregator{ix: amm.SwapInstruction{ProgramID: "agg"}, out: 4200}
	order := Order{Side: SideSell, Source: models.SourcePumpSwap, PoolAddress: "Pool1", InputMint: "Mint1", OutputMint: "So11111111111111111111111111111111111111112", AmountIn: 1000, SlippageBps: 9500}
	eng := New(pool, testSigner(t), aggregator, &fakeBlockhash{hash: "hash1"}, config.ExecutionConfig{MaxRetries: 2, SlippageStepBps: 500}, false)

	result := eng.Execute(context.Background(), order)
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.OutputAmount != aggregator.out {
		t.Fatalf("expected the aggregator's quoted amount %d as output, got %d", aggregator.out, result.OutputAmount)
	}
}
