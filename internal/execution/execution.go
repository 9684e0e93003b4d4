// Package execution implements the trade-execution contract: route
// discovery, transaction assembly, parallel broadcast, confirm with
// rebroadcast, and a slippage-escalating failure ladder. The raced
// broadcast-then-confirm shape is grounded directly on internal/rpcpool's
// BroadcastSend/Confirm, themselves generalized from a custom-timeout
// raw-RPC pattern.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/rpcpool"
	"github.com/sniperbot/engine/pkg/models"
)

// Side is the direction of a swap order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is the execute_swap contract input.
type Order struct {
	Side                Side
	Source              models.AMMSource
	PoolAddress         string
	InputMint           string
	OutputMint          string
	AmountIn            int64
	SlippageBps         int
	RoutePreference      string
	TipLamports         int64
	ConfirmationDeadline time.Duration
}

// Fill records one partial execution leg, for orders that settle across
// more than one broadcast attempt.
type Fill struct {
	Signature    string
	OutputAmount int64
	SlippageBps  int
	Route        string
}

// TradeResult is one of the three terminal outcomes execution can return:
// success, on-chain failure, or timeout.
type TradeResult struct {
	Success       bool
	OnChainFailure bool
	TimedOut      bool
	Signature     string
	OutputAmount  int64
	Error         string
	Fills         []Fill
}

// rpcPool is the subset of rpcpool.Pool the execution engine depends on.
type rpcPool interface {
	SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
	WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
	BroadcastSend(ctx context.Context, rawTx []byte) (string, error)
	Confirm(ctx context.Context, signature string, rawTx []byte, rebroadcast bool, rebroadcastInterval time.Duration) rpcpool.ConfirmResult
}

// AggregatorClient abstracts the external swap-quote aggregator used when a
// source does not natively serve a route.
type AggregatorClient interface {
	Quote(ctx context.Context, inMint, outMint string, amountIn int64, slippageBps int) (amm.SwapInstruction, int64, error)
}

// Signer produces a raw, signed transaction from an assembled instruction.
type Signer interface {
	Sign(ctx context.Context, ix amm.SwapInstruction, blockhash string, tip int64) ([]byte, string, error) // returns (rawTx, signature)
	PublicKey() string
}

// Engine runs the full C7 protocol against one configured rpcpool.Pool.
type Engine struct {
	pool       rpcPool
	signer     Signer
	aggregator AggregatorClient
	cfg        config.ExecutionConfig
	blockhash  BlockhashSource
	dryRun     bool
}

// BlockhashSource is the subset of internal/cache.BlockhashCache execution
// depends on.
type BlockhashSource interface {
	Get(ctx context.Context) (string, error)
}

func New(pool rpcPool, signer Signer, aggregator AggregatorClient, blockhash BlockhashSource, cfg config.ExecutionConfig, dryRun bool) *Engine {
	return &Engine{pool: pool, signer: signer, aggregator: aggregator, cfg: cfg, blockhash: blockhash, dryRun: dryRun}
}

// Execute runs the failure ladder: route discovery, assembly, broadcast, and
// confirm, retrying with escalated slippage (and, on the sell path, an
// alternating route) until max_retries is exhausted.
func (e *Engine) Execute(ctx context.Context, order Order) TradeResult {
	var last TradeResult
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		result := e.attempt(ctx, order, attempt)
		if result.Success {
			return result
		}
		last = result
		if attempt == e.cfg.MaxRetries {
			break
		}
	}
	return last
}

// estimateDirectOutput quotes a direct-route swap's output from the pool's
// live reserves via the constant-product formula every supported AMM kind
// shares. A failed read (pool closed, RPC error) leaves the route's output
// amount at 0 rather than failing the trade outright.
func (e *Engine) estimateDirectOutput(ctx context.Context, order Order) (int64, error) {
	reserves, err := amm.ReadReserves(ctx, order.Source, e.pool, order.PoolAddress)
	if err != nil {
		return 0, err
	}
	return amm.EstimateSwapOutput(reserves, order.Side == SideBuy, order.AmountIn)
}

func (e *Engine) attempt(ctx context.Context, order Order, attempt int) TradeResult {
	slippage := order.SlippageBps + attempt*e.cfg.SlippageStepBps
	escalated := order
	escalated.SlippageBps = slippage

	route, ix, outAmount, err := discoverRoute(ctx, e.aggregator, escalated, attempt)
	if err != nil {
		return TradeResult{Error: fmt.Sprintf("route discovery: %v", err)}
	}
	if route == routeDirect {
		if estimated, qErr := e.estimateDirectOutput(ctx, order); qErr == nil {
			outAmount = estimated
		}
	}

	if order.Side == SideBuy && e.dryRun {
		return TradeResult{Success: true, Signature: "dry-run", OutputAmount: outAmount, Fills: []Fill{{Route: route, SlippageBps: slippage, OutputAmount: outAmount}}}
	}

	blockhash, err := e.blockhash.Get(ctx)
	if err != nil {
		return TradeResult{Error: fmt.Sprintf("blockhash: %v", err)}
	}

	rawTx, signature, err := e.signer.Sign(ctx, ix, blockhash, e.cfg.TipLamports)
	if err != nil {
		return TradeResult{Error: fmt.Sprintf("sign: %v", err)}
	}

	deadline := order.ConfirmationDeadline
	if deadline <= 0 {
		deadline = time.Duration(e.cfg.ConfirmDeadlineS * float64(time.Second))
	}
	confirmCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if _, err := e.pool.BroadcastSend(confirmCtx, rawTx); err != nil {
		return TradeResult{Error: fmt.Sprintf("broadcast: %v", err)}
	}

	rebroadcastInterval := time.Duration(e.cfg.RebroadcastIntervalS * float64(time.Second))
	confirmResult := e.pool.Confirm(confirmCtx, signature, rawTx, true, rebroadcastInterval)

	switch {
	case confirmResult.Confirmed:
		return TradeResult{
			Success:      true,
			Signature:    signature,
			OutputAmount: outAmount,
			Fills:        []Fill{{Signature: signature, Route: route, SlippageBps: slippage, OutputAmount: outAmount}},
		}
	case confirmResult.Err != nil && confirmCtx.Err() == nil:
		return TradeResult{OnChainFailure: true, Signature: signature, Error: confirmResult.Err.Error()}
	default:
		return TradeResult{TimedOut: true, Signature: signature}
	}
}
