package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the ambient Prometheus instrumentation for the trading
// loop, grounded on luxfi-evm's on-path prometheus/client_golang
// requirement (there: chain/network counters and gauges; here: trading-loop
// counters and gauges, registered the idiomatic promauto way rather than
// that file's custom Gatherer bridge, since there is no foreign metrics
// registry here to adapt from).
type Metrics struct {
	PoolsDetected    prometheus.Counter
	PoolsPassed      prometheus.Counter
	PositionsOpened  prometheus.Counter
	PositionsClosed  *prometheus.CounterVec
	SellFailures     prometheus.Counter
	OpenPositions    prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		PoolsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_pools_detected_total",
			Help: "Total candidate pools observed by the detector.",
		}),
		PoolsPassed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_pools_passed_total",
			Help: "Total candidate pools that passed the scorer's veto/score pipeline.",
		}),
		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_positions_opened_total",
			Help: "Total positions opened.",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_positions_closed_total",
			Help: "Total positions closed, labeled by exit_reason.",
		}, []string{"exit_reason"}),
		SellFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_sell_failures_total",
			Help: "Total sell attempts that failed to confirm on-chain.",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_open_positions",
			Help: "Current number of admitted open positions.",
		}),
	}
}
