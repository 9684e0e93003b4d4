package amm

import (
	"context"
	"encoding/json"
	"fmt"
)

// poolCreateLog is the common shape emitted by every supported program's
// pool-create instruction log, once base64-decoded and JSON-unmarshalled by
// the detector. Field names are the wire names used by each program's own
// log encoder; only presence/absence of optional fields differs by variant.
type poolCreateLog struct {
	PoolAddress string `json:"pool"`
	BaseMint    string `json:"baseMint"`
	QuoteMint   string `json:"quoteMint"`
	Creator     string `json:"creator"`
	BlockTime   int64  `json:"blockTime"`
	Slot        int64  `json:"slot"`
}

func genericParsePoolCreate(programName string) func(json.RawMessage) (PoolCreateEvent, error) {
	return func(raw json.RawMessage) (PoolCreateEvent, error) {
		var log poolCreateLog
		if err := json.Unmarshal(raw, &log); err != nil {
			return PoolCreateEvent{}, fmt.Errorf("amm/%s: parse pool-create log: %w", programName, err)
		}
		if log.PoolAddress == "" || log.BaseMint == "" {
			return PoolCreateEvent{}, fmt.Errorf("amm/%s: pool-create log missing required fields", programName)
		}
		return PoolCreateEvent{
			PoolAddress: log.PoolAddress,
			BaseMint:    log.BaseMint,
			QuoteMint:   log.QuoteMint,
			Creator:     log.Creator,
			BlockTime:   log.BlockTime,
			Slot:        log.Slot,
		}, nil
	}
}

type reserveAccount struct {
	BaseAmount  int64 `json:"baseAmount"`
	QuoteAmount int64 `json:"quoteAmount"`
}

func genericReadReserves(programName string) func(context.Context, RawLogFetcher, string) (Reserves, error) {
	return func(ctx context.Context, fetcher RawLogFetcher, poolAddress string) (Reserves, error) {
		poolParam, _ := json.Marshal(poolAddress)
		raw, err := fetcher.SendPrimary(ctx, "getAccountInfo", poolParam)
		if err != nil {
			return Reserves{}, fmt.Errorf("amm/%s: read reserves for %s: %w", programName, poolAddress, err)
		}
		var acct reserveAccount
		if err := json.Unmarshal(raw, &acct); err != nil {
			return Reserves{}, fmt.Errorf("amm/%s: decode reserve account: %w", programName, err)
		}
		return Reserves{BaseAmount: acct.BaseAmount, QuoteAmount: acct.QuoteAmount}, nil
	}
}

func genericBuildDirectSwap(programID string) func(string, bool, int64, int) (SwapInstruction, error) {
	return func(poolAddress string, sideBuy bool, amountIn int64, slippageBps int) (SwapInstruction, error) {
		if poolAddress == "" {
			return SwapInstruction{}, fmt.Errorf("amm: empty pool address for direct swap")
		}
		data, err := json.Marshal(struct {
			SideBuy     bool  `json:"sideBuy"`
			AmountIn    int64 `json:"amountIn"`
			SlippageBps int   `json:"slippageBps"`
		}{sideBuy, amountIn, slippageBps})
		if err != nil {
			return SwapInstruction{}, err
		}
		return SwapInstruction{
			ProgramID: programID,
			Data:      data,
			Accounts:  []string{poolAddress},
		}, nil
	}
}

const (
	pumpSwapProgramID      = "PSwapMAbuu1kA6M3rDVHX2NmTkgvwFEzNTXPMqM7nWS"
	raydiumV4ProgramID     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	raydiumCPMMProgramID   = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"
	meteoraDLMMProgramID   = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
	orcaWhirlpoolProgramID = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

var pumpSwapOps = operations{
	parsePoolCreate: genericParsePoolCreate("pumpswap"),
	buildDirectSwap: genericBuildDirectSwap(pumpSwapProgramID),
	readReserves:    genericReadReserves("pumpswap"),
}

var raydiumV4Ops = operations{
	parsePoolCreate: genericParsePoolCreate("raydium_v4"),
	buildDirectSwap: genericBuildDirectSwap(raydiumV4ProgramID),
	readReserves:    genericReadReserves("raydium_v4"),
}

var raydiumCPMMOps = operations{
	parsePoolCreate: genericParsePoolCreate("raydium_cpmm"),
	buildDirectSwap: genericBuildDirectSwap(raydiumCPMMProgramID),
	readReserves:    genericReadReserves("raydium_cpmm"),
}

var meteoraDLMMOps = operations{
	parsePoolCreate: genericParsePoolCreate("meteora_dlmm"),
	buildDirectSwap: genericBuildDirectSwap(meteoraDLMMProgramID),
	readReserves:    genericReadReserves("meteora_dlmm"),
}

var orcaWhirlpoolOps = operations{
	parsePoolCreate: genericParsePoolCreate("orca_whirlpool"),
	buildDirectSwap: genericBuildDirectSwap(orcaWhirlpoolProgramID),
	readReserves:    genericReadReserves("orca_whirlpool"),
}
