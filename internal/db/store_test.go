package db

import (
	"context"
	"testing"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSavePositionRoundTrips(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	pos := models.Position{
		PositionID:  "pos-1",
		TokenMint:   "MintA",
		Source:      models.SourcePumpSwap,
		EntryPrice:  0.001,
		TokenAmount: 1000,
		SolInvested: 1,
		Status:      models.StatusOpen,
		TPLevelsHit: []int{0, 1},
		OpenedAt:    now,
	}
	if err := store.SavePosition(pos); err != nil {
		t.Fatalf("save position: %v", err)
	}

	pos.CurrentPrice = 0.002
	pos.Status = models.StatusPartialClose
	if err := store.SavePosition(pos); err != nil {
		t.Fatalf("update position: %v", err)
	}

	var record PositionRecord
	if err := store.db.Where("position_id = ?", "pos-1").First(&record).Error; err != nil {
		t.Fatalf("reload position: %v", err)
	}
	if record.CurrentPrice != 0.002 || record.Status != string(models.StatusPartialClose) {
		t.Fatalf("expected updated fields to persist, got %+v", record)
	}

	var count int64
	store.db.Model(&PositionRecord{}).Where("position_id = ?", "pos-1").Count(&count)
	if count != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", count)
	}
}

func TestBlacklistCheckerRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, ok := store.IsBlacklisted("wallet1"); ok {
		t.Fatal("expected unknown wallet to report not blacklisted")
	}

	if err := store.PromoteBlacklist("wallet1", "linked to 3 rugs", 3); err != nil {
		t.Fatalf("promote blacklist: %v", err)
	}

	entry, ok := store.IsBlacklisted("wallet1")
	if !ok {
		t.Fatal("expected wallet1 to be blacklisted after promotion")
	}
	if entry.LinkedRugCount != 3 {
		t.Fatalf("expected linked_rug_count 3, got %d", entry.LinkedRugCount)
	}
}

func TestCreatorLookupRoundTrip(t *testing.T) {
	store := openTestStore(t)

	profile := models.CreatorProfile{CreatorWallet: "creator1", ReputationScore: 10}
	profile.ApplyOutcome("mintA", models.OutcomeSurvivor)

	if err := store.SaveCreator(profile); err != nil {
		t.Fatalf("save creator: %v", err)
	}

	loaded, ok := store.Get("creator1")
	if !ok {
		t.Fatal("expected creator1 to be found")
	}
	if loaded.WinCount != 1 || len(loaded.LinkedTokens) != 1 || loaded.LinkedTokens[0] != "mintA" {
		t.Fatalf("expected win_count=1 and linked_tokens=[mintA], got %+v", loaded)
	}
}

func TestUnscoredPoolsFiltersByAgeAndOutcome(t *testing.T) {
	store := openTestStore(t)

	old := models.DetectedPool{PoolID: "pool-old", DetectedAt: time.Now().Add(-time.Hour), Outcome: models.OutcomeUnknown}
	recent := models.DetectedPool{PoolID: "pool-recent", DetectedAt: time.Now(), Outcome: models.OutcomeUnknown}
	scored := models.DetectedPool{PoolID: "pool-scored", DetectedAt: time.Now().Add(-time.Hour), Outcome: models.OutcomeRug}

	for _, p := range []models.DetectedPool{old, recent, scored} {
		if err := store.SaveDetectedPool(p); err != nil {
			t.Fatalf("save detected pool %s: %v", p.PoolID, err)
		}
	}

	unscored, err := store.UnscoredPools(30 * time.Minute)
	if err != nil {
		t.Fatalf("unscored pools: %v", err)
	}
	if len(unscored) != 1 || unscored[0].PoolID != "pool-old" {
		t.Fatalf("expected only pool-old to be due for enrichment, got %+v", unscored)
	}
}

func TestWalletTargetsStaleWithNoRefreshedRows(t *testing.T) {
	store := openTestStore(t)

	stale, err := store.WalletTargetsStale(time.Hour)
	if err != nil {
		t.Fatalf("wallet targets stale: %v", err)
	}
	if !stale {
		t.Fatal("expected no refreshed rows to report stale")
	}
}

func TestReplaceRefreshedWalletTargetsKeepsCuratedRows(t *testing.T) {
	store := openTestStore(t)

	curated := WalletTargetRecord{Wallet: "Curated1", Tier: "elite", Source: string(models.WalletTargetCurated)}
	if err := store.db.Create(&curated).Error; err != nil {
		t.Fatalf("seed curated row: %v", err)
	}

	refreshed := []models.WalletTarget{{Wallet: "Trend1", Tier: "trending", Source: models.WalletTargetRefreshed}}
	if err := store.ReplaceRefreshedWalletTargets(refreshed); err != nil {
		t.Fatalf("replace refreshed targets: %v", err)
	}

	targets, err := store.WalletTargets()
	if err != nil {
		t.Fatalf("wallet targets: %v", err)
	}
	byWallet := make(map[string]models.WalletTarget, len(targets))
	for _, target := range targets {
		byWallet[target.Wallet] = target
	}
	if _, ok := byWallet["Curated1"]; !ok {
		t.Fatalf("expected the curated row to survive a refresh, got %+v", targets)
	}
	if _, ok := byWallet["Trend1"]; !ok {
		t.Fatalf("expected the new refreshed row to be present, got %+v", targets)
	}

	stale, err := store.WalletTargetsStale(time.Hour)
	if err != nil {
		t.Fatalf("wallet targets stale: %v", err)
	}
	if stale {
		t.Fatal("expected a just-written refreshed row to report fresh")
	}

	if err := store.ReplaceRefreshedWalletTargets(nil); err != nil {
		t.Fatalf("replace refreshed targets with empty set: %v", err)
	}
	targets, err = store.WalletTargets()
	if err != nil {
		t.Fatalf("wallet targets after clearing refreshed rows: %v", err)
	}
	if len(targets) != 1 || targets[0].Wallet != "Curated1" {
		t.Fatalf("expected only the curated row to remain, got %+v", targets)
	}
}

type fakeObserver struct {
	reserves amm.Reserves
	err      error
}

func (f *fakeObserver) Read(ctx context.Context, source models.AMMSource, poolAddress string) (amm.Reserves, error) {
	return f.reserves, f.err
}

func TestEnrichmentJobLabelsDrainedPoolAsRug(t *testing.T) {
	store := openTestStore(t)
	pool := models.DetectedPool{
		PoolID:     "pool-rug",
		DetectedAt: time.Now().Add(-time.Hour),
		Passed:     true,
		Features:   models.FeatureSnapshot{LiquidityNative: 1000},
	}
	if err := store.SaveDetectedPool(pool); err != nil {
		t.Fatalf("save pool: %v", err)
	}

	job := NewEnrichmentJob(store, &fakeObserver{reserves: amm.Reserves{BaseAmount: 0, QuoteAmount: 0}})
	job.enrich(context.Background())

	loaded, err := store.UnscoredPools(0)
	if err != nil {
		t.Fatalf("reload unscored: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatal("expected the pool to no longer be unscored after enrichment")
	}

	precision, _ := job.Stats()
	if precision != 0 {
		t.Fatalf("expected a rug outcome on a predicted-pass pool to count as a false positive, got precision=%v", precision)
	}
}

func TestEnrichmentJobLabelsHealthyPoolAsSurvivor(t *testing.T) {
	store := openTestStore(t)
	pool := models.DetectedPool{
		PoolID:     "pool-survivor",
		DetectedAt: time.Now().Add(-time.Hour),
		Passed:     true,
		Features:   models.FeatureSnapshot{LiquidityNative: 1000},
	}
	if err := store.SaveDetectedPool(pool); err != nil {
		t.Fatalf("save pool: %v", err)
	}

	job := NewEnrichmentJob(store, &fakeObserver{reserves: amm.Reserves{BaseAmount: 1000, QuoteAmount: 1000}})
	job.enrich(context.Background())

	precision, recall := job.Stats()
	if precision != 1 || recall != 1 {
		t.Fatalf("expected perfect precision/recall on one true positive, got precision=%v recall=%v", precision, recall)
	}
}
