package db

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/pkg/models"
)

// Outcome enrichment compares the scorer's predicted verdict (Passed)
// against a later-observed ground truth and writes pool_outcome back.
// Modeled on internal/shadow/shadow_runner.go's production-vs-experimental
// comparison loop, here repurposed to predicted-vs-observed; the
// drift-report tally is adapted from internal/shadow/evaluator.go's
// summary-statistics shape down to a simple precision/recall count, since
// the ARI/VI clustering-agreement machinery that file uses does not
// transfer to a single 3-valued outcome label.
const (
	enrichmentInterval = 10 * time.Minute
	enrichmentMinAge   = 30 * time.Minute
	rugDrainThreshold  = 90.0
)

// PriceObserver reads a pool's current reserves; satisfied by the same
// adapter internal/position.ReservesReader wraps.
type PriceObserver interface {
	Read(ctx context.Context, source models.AMMSource, poolAddress string) (amm.Reserves, error)
}

// driftStats tallies the enrichment job's agreement with the scorer's
// predictions, analogous to shadow's divergence count.
type driftStats struct {
	mu                                     sync.Mutex
	truePositive, falsePositive, falseNegative, trueNegative int
}

func (d *driftStats) record(predictedPass bool, outcome models.PoolOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case predictedPass && outcome == models.OutcomeSurvivor:
		d.truePositive++
	case predictedPass && outcome == models.OutcomeRug:
		d.falsePositive++
	case !predictedPass && outcome == models.OutcomeRug:
		d.trueNegative++
	case !predictedPass && outcome == models.OutcomeSurvivor:
		d.falseNegative++
	}
}

// Report returns (precision, recall) of the scorer's pass decision against
// observed outcomes so far.
func (d *driftStats) Report() (precision, recall float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.truePositive+d.falsePositive > 0 {
		precision = float64(d.truePositive) / float64(d.truePositive+d.falsePositive)
	}
	if d.truePositive+d.falseNegative > 0 {
		recall = float64(d.truePositive) / float64(d.truePositive+d.falseNegative)
	}
	return
}

// EnrichmentJob periodically labels stale detected_pools rows with an
// observed outcome.
type EnrichmentJob struct {
	store    *Store
	observer PriceObserver
	stats    driftStats
}

func NewEnrichmentJob(store *Store, observer PriceObserver) *EnrichmentJob {
	return &EnrichmentJob{store: store, observer: observer}
}

// Stats exposes the running precision/recall tally for the telemetry surface.
func (j *EnrichmentJob) Stats() (precision, recall float64) { return j.stats.Report() }

func (j *EnrichmentJob) Run(ctx context.Context) {
	ticker := time.NewTicker(enrichmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.enrich(ctx)
		}
	}
}

func (j *EnrichmentJob) enrich(ctx context.Context) {
	pools, err := j.store.UnscoredPools(enrichmentMinAge)
	if err != nil {
		log.Printf("[db] enrichment: list unscored pools: %v", err)
		return
	}
	for _, pool := range pools {
		outcome, err := j.observe(ctx, pool)
		if err != nil {
			log.Printf("[db] enrichment: observe %s: %v", pool.PoolID, err)
			continue
		}
		if outcome == models.OutcomeUnknown {
			continue
		}
		if err := j.store.SetOutcome(pool.PoolID, outcome); err != nil {
			log.Printf("[db] enrichment: set outcome %s: %v", pool.PoolID, err)
			continue
		}
		j.stats.record(pool.Passed, outcome)
	}
}

// observe classifies a pool as rug (reserves drained past threshold) or
// survivor (liquidity still present); returns unknown when the signal is
// ambiguous, leaving the row to be re-tried on the next pass.
func (j *EnrichmentJob) observe(ctx context.Context, pool DetectedPoolRecord) (models.PoolOutcome, error) {
	reserves, err := j.observer.Read(ctx, models.AMMSource(pool.Source), pool.PoolAddress)
	if err != nil {
		return models.OutcomeUnknown, err
	}
	if reserves.BaseAmount == 0 {
		return models.OutcomeRug, nil
	}
	if pool.LiquidityNative <= 0 {
		return models.OutcomeUnknown, nil
	}
	initial := amm.Reserves{BaseAmount: int64(pool.LiquidityNative), QuoteAmount: int64(pool.LiquidityNative)}
	if amm.DrainedPct(initial, reserves) >= rugDrainThreshold {
		return models.OutcomeRug, nil
	}
	return models.OutcomeSurvivor, nil
}
