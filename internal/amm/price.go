package amm

import (
	"fmt"
	"math/big"
)

// Price returns the quote-per-base spot price implied by reserves, in the
// constant-product sense used by every supported AMM kind: each tick reads
// current reserves and computes price from them.
func (r Reserves) Price() float64 {
	if r.BaseAmount == 0 {
		return 0
	}
	return float64(r.QuoteAmount) / float64(r.BaseAmount)
}

// DrainedPct returns how much the base reserve has fallen relative to
// previous, as a percentage in [0,100]. Negative growth clamps to 0.
func DrainedPct(previous, current Reserves) float64 {
	if previous.BaseAmount <= 0 {
		return 0
	}
	delta := previous.BaseAmount - current.BaseAmount
	if delta <= 0 {
		return 0
	}
	return float64(delta) / float64(previous.BaseAmount) * 100
}

// EstimateSwapOutput quotes a constant-product swap's output amount from
// reserves read immediately before the trade. sideBuy means amountIn is
// denominated in the quote asset and the output is the base asset (a sell
// is the reverse). big.Int guards against the base*quote product overflowing
// int64 on deep pools.
func EstimateSwapOutput(reserves Reserves, sideBuy bool, amountIn int64) (int64, error) {
	if reserves.BaseAmount <= 0 || reserves.QuoteAmount <= 0 {
		return 0, fmt.Errorf("amm: cannot quote a swap against empty reserves")
	}
	if amountIn <= 0 {
		return 0, nil
	}

	k := new(big.Int).Mul(big.NewInt(reserves.BaseAmount), big.NewInt(reserves.QuoteAmount))

	if sideBuy {
		newQuote := reserves.QuoteAmount + amountIn
		newBase := new(big.Int).Div(k, big.NewInt(newQuote))
		out := reserves.BaseAmount - newBase.Int64()
		if out < 0 {
			out = 0
		}
		return out, nil
	}

	newBase := reserves.BaseAmount + amountIn
	newQuote := new(big.Int).Div(k, big.NewInt(newBase))
	out := reserves.QuoteAmount - newQuote.Int64()
	if out < 0 {
		out = 0
	}
	return out, nil
}
