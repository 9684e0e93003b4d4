// Package amm models the closed set of supported AMM sources as a tagged
// variant and dispatches pool-create parsing, direct-swap instruction
// assembly, and reserve reads through a per-variant operation table. Modeled
// on an earlier per-heuristic dispatch map that routed an investigation kind
// to one of a fixed set of analyzer functions through a map literal rather
// than a type switch.
package amm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sniperbot/engine/pkg/models"
)

// PoolCreateEvent is the normalized shape every variant parser produces from
// a raw program log.
type PoolCreateEvent struct {
	PoolAddress string
	BaseMint    string
	QuoteMint   string
	Creator     string
	BlockTime   int64
	Slot        int64
}

// Reserves is the normalized shape every variant's reserve reader produces.
type Reserves struct {
	BaseAmount  int64
	QuoteAmount int64
}

// SwapInstruction is an opaque, pre-serialized instruction payload ready for
// inclusion in a transaction.
type SwapInstruction struct {
	ProgramID string
	Data      []byte
	Accounts  []string
}

// RawLogFetcher abstracts the RPC call a reserve reader needs, so variant
// operations stay mockable without a live pool.
type RawLogFetcher interface {
	SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error)
}

// operations is the per-variant dispatch table.
type operations struct {
	parsePoolCreate func(raw json.RawMessage) (PoolCreateEvent, error)
	buildDirectSwap func(poolAddress string, sideBuy bool, amountIn int64, slippageBps int) (SwapInstruction, error)
	readReserves    func(ctx context.Context, fetcher RawLogFetcher, poolAddress string) (Reserves, error)
}

var table = map[models.AMMSource]operations{
	models.SourcePumpSwap:      pumpSwapOps,
	models.SourceRaydiumV4:     raydiumV4Ops,
	models.SourceRaydiumCPMM:   raydiumCPMMOps,
	models.SourceMeteoraDLMM:   meteoraDLMMOps,
	models.SourceOrcaWhirlpool: orcaWhirlpoolOps,
}

// ErrUnsupportedSource is returned when a source has no entry in the
// dispatch table — should be unreachable given models.AMMSource.Valid().
var ErrUnsupportedSource = fmt.Errorf("amm: unsupported source")

func opsFor(source models.AMMSource) (operations, error) {
	ops, ok := table[source]
	if !ok {
		return operations{}, ErrUnsupportedSource
	}
	return ops, nil
}

// ParsePoolCreate dispatches to source's pool-create parser.
func ParsePoolCreate(source models.AMMSource, raw json.RawMessage) (PoolCreateEvent, error) {
	ops, err := opsFor(source)
	if err != nil {
		return PoolCreateEvent{}, err
	}
	return ops.parsePoolCreate(raw)
}

// BuildDirectSwap dispatches to source's swap-instruction assembler. Returns
// ErrUnsupportedSource for a source outside the dispatch table and an error
// for an empty pool address; it does not check whether the source serves the
// mint.
func BuildDirectSwap(source models.AMMSource, poolAddress string, sideBuy bool, amountIn int64, slippageBps int) (SwapInstruction, error) {
	ops, err := opsFor(source)
	if err != nil {
		return SwapInstruction{}, err
	}
	return ops.buildDirectSwap(poolAddress, sideBuy, amountIn, slippageBps)
}

// ReadReserves dispatches to source's reserve reader.
func ReadReserves(ctx context.Context, source models.AMMSource, fetcher RawLogFetcher, poolAddress string) (Reserves, error) {
	ops, err := opsFor(source)
	if err != nil {
		return Reserves{}, err
	}
	return ops.readReserves(ctx, fetcher, poolAddress)
}
