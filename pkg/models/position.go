package models

import "time"

// PositionStatus is the position's place in the state machine
// open -> partial_close? -> {closed, stopped}, with open -> stopped direct
// also possible on a hard stop.
type PositionStatus string

const (
	StatusOpen          PositionStatus = "open"
	StatusPartialClose  PositionStatus = "partial_close"
	StatusClosed        PositionStatus = "closed"
	StatusStopped       PositionStatus = "stopped"
)

// ExitReason records why a position left its final state.
type ExitReason string

const (
	ExitNone            ExitReason = ""
	ExitTakeProfit      ExitReason = "take_profit"
	ExitTrailingStop    ExitReason = "trailing_stop"
	ExitHardStop        ExitReason = "hard_stop"
	ExitTimeout         ExitReason = "timeout"
	ExitPostTPFloor     ExitReason = "post_tp_floor"
	ExitRugPull         ExitReason = "rug_pull"
	ExitPoolDrained     ExitReason = "pool_drained"
	ExitManual          ExitReason = "manual"
)

// Position is a live or historical trade.
type Position struct {
	PositionID    string    `json:"positionId"`
	TokenMint     string    `json:"tokenMint"`
	PoolAddress   string    `json:"poolAddress"`
	Source        AMMSource `json:"source"`

	EntryPrice    float64 `json:"entryPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	PeakPrice     float64 `json:"peakPrice"`
	PeakMultiplier float64 `json:"peakMultiplier"`

	TokenAmount   float64 `json:"tokenAmount"`
	SolInvested   float64 `json:"solInvested"`
	SolReturned   float64 `json:"solReturned"`
	PnlSol        float64 `json:"pnlSol"`
	PnlPct        float64 `json:"pnlPct"`

	Status        PositionStatus `json:"status"`
	TPLevelsHit   []int          `json:"tpLevelsHit"` // ordered subset of {0,1,2}, never shrinks

	SellAttempts  int `json:"sellAttempts"`
	SellSuccesses int `json:"sellSuccesses"`
	ExitReason    ExitReason `json:"exitReason"`

	OpenedAt       time.Time  `json:"openedAt"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	SecurityScore  int        `json:"securityScore"`
	EntryLatencyMs int64      `json:"entryLatencyMs"`

	// Post-sell telemetry: best-effort, never read by live exit logic.
	PostExitPeakMultiple float64 `json:"postExitPeakMultiple,omitempty"`
	PostExitSampledAt    *time.Time `json:"postExitSampledAt,omitempty"`

	TimeToPeakS float64 `json:"timeToPeakS"`
}

// HasHitTP reports whether the given TP ladder index has already fired.
func (p *Position) HasHitTP(idx int) bool {
	for _, v := range p.TPLevelsHit {
		if v == idx {
			return true
		}
	}
	return false
}

// HighestUnhitReachedLevel returns the largest index in `reached` that is not
// already present in TPLevelsHit, or -1 if none. Codifies the tie-break
// decision in DESIGN.md for the TP ladder's multi-level-unlock case: when
// multiple levels unlock in the same tick, the highest unhit reached level
// sells first.
func (p *Position) HighestUnhitReachedLevel(reached []int) int {
	best := -1
	for _, idx := range reached {
		if !p.HasHitTP(idx) && idx > best {
			best = idx
		}
	}
	return best
}

// IsTerminal reports whether the position has left the live tick loop.
func (p *Position) IsTerminal() bool {
	return p.Status == StatusClosed || p.Status == StatusStopped
}
