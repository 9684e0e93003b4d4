package models

// AMMSource is the closed set of supported AMM/launchpad venues. The set is
// closed by design — adding a new venue means adding a new constant plus a
// new entry in every per-variant dispatch table in internal/amm, never a
// type switch scattered through the codebase.
type AMMSource string

const (
	SourcePumpSwap      AMMSource = "pumpswap"
	SourceRaydiumV4      AMMSource = "raydium_v4"
	SourceRaydiumCPMM    AMMSource = "raydium_cpmm"
	SourceMeteoraDLMM    AMMSource = "meteora_dlmm"
	SourceOrcaWhirlpool  AMMSource = "orca_whirlpool"
)

// AllSources lists every supported AMM variant, in a stable order used for
// iteration (e.g. health-check probes, dispatch-table validation at startup).
var AllSources = []AMMSource{
	SourcePumpSwap,
	SourceRaydiumV4,
	SourceRaydiumCPMM,
	SourceMeteoraDLMM,
	SourceOrcaWhirlpool,
}

func (s AMMSource) Valid() bool {
	for _, v := range AllSources {
		if v == s {
			return true
		}
	}
	return false
}
