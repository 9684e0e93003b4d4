// Package position implements the per-position state machine and tick loop:
// one cooperative task per open position, evaluating rug detection, the
// take-profit ladder, trailing stop, hard stop, timeout, and the post-TP
// floor in strict order every tick. The ticker-per-unit loop shape is
// modeled on a Run-loop pattern, here instantiated once per position instead
// of once globally.
package position

import (
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/pkg/models"
)

// actionKind names which of the six evaluation rules fired this tick.
type actionKind int

const (
	actionNone actionKind = iota
	actionRug
	actionTakeProfit
	actionTrailingStop
	actionHardStop
	actionTimeout
	actionPostTPFloor
)

// tickDecision is the pure output of evaluateTick: what to sell, how much,
// and why. The caller (Manager) turns this into an execution.Order.
type tickDecision struct {
	Kind         actionKind
	SellFraction float64 // fraction of current token_amount, (0,1]
	TPLevelIndex int     // -1 when not a take-profit action
	ExitReason   models.ExitReason
	Terminal     bool // true if this decision closes or stops the position
}

// evaluateTick runs the six ordered rules against one observation: current
// price, current and previous reserves, and elapsed
// time since open. It never mutates pos; the caller applies the result
// under the position's own lock.
func evaluateTick(pos *models.Position, reserves, previousReserves amm.Reserves, elapsed time.Duration, cfg config.RiskConfig) tickDecision {
	// (1) rug detection.
	if reserves.BaseAmount == 0 && previousReserves.BaseAmount > 0 {
		return tickDecision{Kind: actionRug, SellFraction: 1, TPLevelIndex: -1, ExitReason: models.ExitPoolDrained, Terminal: true}
	}
	if amm.DrainedPct(previousReserves, reserves) >= cfg.DrainPct {
		return tickDecision{Kind: actionRug, SellFraction: 1, TPLevelIndex: -1, ExitReason: models.ExitRugPull, Terminal: true}
	}

	multiplier := 0.0
	if pos.EntryPrice > 0 {
		multiplier = pos.CurrentPrice / pos.EntryPrice
	}

	// (2) take-profit ladder: sell the highest unhit reached level first
	// (tie-break decision recorded in DESIGN.md).
	var reached []int
	for idx, level := range cfg.TPLadder {
		if multiplier >= level.AtMultiplier {
			reached = append(reached, idx)
		}
	}
	if idx := pos.HighestUnhitReachedLevel(reached); idx >= 0 {
		return tickDecision{
			Kind:         actionTakeProfit,
			SellFraction: cfg.TPLadder[idx].SellPct,
			TPLevelIndex: idx,
			ExitReason:   models.ExitTakeProfit,
		}
	}

	// (3) trailing stop: threshold tightens as more TP levels fire.
	if pos.PeakPrice > 0 {
		drawdownPct := (pos.PeakPrice - pos.CurrentPrice) / pos.PeakPrice * 100
		threshold := trailingThreshold(len(pos.TPLevelsHit), cfg)
		if drawdownPct >= threshold {
			fraction := 1.0
			if shouldKeepMoonBag(pos, cfg) {
				fraction = 1 - cfg.MoonBagPct
			}
			return tickDecision{
				Kind:         actionTrailingStop,
				SellFraction: fraction,
				TPLevelIndex: -1,
				ExitReason:   models.ExitTrailingStop,
				Terminal:     fraction >= 1,
			}
		}
	}

	// (4) hard stop: only before any TP has fired.
	if len(pos.TPLevelsHit) == 0 && pos.PnlPct <= cfg.HardStopPct {
		return tickDecision{Kind: actionHardStop, SellFraction: 1, TPLevelIndex: -1, ExitReason: models.ExitHardStop, Terminal: true}
	}

	// (5) timeout: only before any TP has fired.
	if len(pos.TPLevelsHit) == 0 && elapsed >= time.Duration(cfg.TimeoutS*float64(time.Second)) {
		return tickDecision{Kind: actionTimeout, SellFraction: 1, TPLevelIndex: -1, ExitReason: models.ExitTimeout, Terminal: true}
	}

	// (6) post-TP floor: only after at least one TP has fired.
	if len(pos.TPLevelsHit) > 0 && multiplier < cfg.PostTPFloorMultiple {
		return tickDecision{Kind: actionPostTPFloor, SellFraction: 1, TPLevelIndex: -1, ExitReason: models.ExitPostTPFloor, Terminal: true}
	}

	return tickDecision{Kind: actionNone, TPLevelIndex: -1}
}

// trailingThreshold selects the configured trailing-stop percentage for the
// position's current TP state: looser before any TP fires, tighter after
// each subsequent level.
func trailingThreshold(tpLevelsHit int, cfg config.RiskConfig) float64 {
	switch {
	case tpLevelsHit == 0:
		return cfg.TrailingPreTP
	case tpLevelsHit == 1:
		return cfg.TrailingPostTP1
	default:
		return cfg.TrailingPostTP2
	}
}

// shouldKeepMoonBag reports whether the configured residual fraction should
// survive a trailing-stop exit: every TP level must have fired and pnl must
// still be positive. Evaluated before the trailing sell-amount is computed,
// never after.
func shouldKeepMoonBag(pos *models.Position, cfg config.RiskConfig) bool {
	if cfg.MoonBagPct <= 0 {
		return false
	}
	if len(pos.TPLevelsHit) < len(cfg.TPLadder) {
		return false
	}
	return pos.PnlPct > 0
}
