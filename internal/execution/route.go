package execution

import (
	"context"
	"fmt"

	"github.com/sniperbot/engine/internal/amm"
)

const (
	routeDirect     = "direct"
	routeAggregator = "aggregator"
)

// discoverRoute picks a swap route for one attempt. Buy orders always
// attempt the direct AMM route. Sell orders cycle direct -> aggregator ->
// direct (at the next, already-escalated slippage) across retries, since the
// failure ladder in Execute increases slippage on every attempt regardless
// of route. The aggregator branch returns its own quoted output amount;
// direct routes return 0 and leave quoting to the caller, which has the
// reserves reader this package does not.
func discoverRoute(ctx context.Context, aggregator AggregatorClient, order Order, attempt int) (string, amm.SwapInstruction, int64, error) {
	slippage := order.SlippageBps

	if order.Side == SideBuy {
		ix, err := amm.BuildDirectSwap(order.Source, order.PoolAddress, true, order.AmountIn, slippage)
		return routeDirect, ix, 0, err
	}

	switch attempt % 3 {
	case 1:
		if aggregator == nil {
			return directSell(order, slippage)
		}
		ix, outAmount, err := aggregator.Quote(ctx, order.InputMint, order.OutputMint, order.AmountIn, slippage)
		if err != nil {
			return routeAggregator, amm.SwapInstruction{}, 0, fmt.Errorf("aggregator quote: %w", err)
		}
		return routeAggregator, ix, outAmount, nil
	default:
		return directSell(order, slippage)
	}
}

func directSell(order Order, slippage int) (string, amm.SwapInstruction, int64, error) {
	ix, err := amm.BuildDirectSwap(order.Source, order.PoolAddress, false, order.AmountIn, slippage)
	return routeDirect, ix, 0, err
}
