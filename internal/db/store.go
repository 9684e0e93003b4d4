package db

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sniperbot/engine/pkg/models"
)

// Store is the single-writer embedded store: single-writer to avoid lock
// contention, reads concurrent. gorm's default connection pool already
// serializes sqlite writes at the driver level; callers are still expected
// to route all writes for one component through one goroutine to keep the
// single-writer discipline.
type Store struct {
	db *gorm.DB
}

// Open creates or attaches to a sqlite file at path and runs additive-only
// migrations: new columns are added with defaults, no destructive
// migrations during the trading loop.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&DetectedPoolRecord{},
		&PositionRecord{},
		&PositionPriceLogRecord{},
		&TokenCreatorRecord{},
		&ScammerBlacklistRecord{},
		&WalletTargetRecord{},
		&SessionEventRecord{},
	); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("db: underlying conn: %w", err)
	}
	return sqlDB.Close()
}

// SaveDetectedPool upserts a candidate pool by its unique pool_id. An empty
// outcome is stored as unknown, so the enrichment job picks the pool up.
func (s *Store) SaveDetectedPool(pool models.DetectedPool) error {
	reasons, _ := json.Marshal(pool.RejectionReasons)
	outcome := pool.Outcome
	if outcome == "" {
		outcome = models.OutcomeUnknown
	}
	record := DetectedPoolRecord{
		PoolID:                 pool.PoolID,
		Source:                 string(pool.Source),
		PoolAddress:            pool.PoolAddress,
		BaseMint:               pool.BaseMint,
		QuoteMint:              pool.QuoteMint,
		Creator:                pool.Creator,
		DetectedAt:             pool.DetectedAt,
		Slot:                   pool.Slot,
		TxSignature:            pool.TxSignature,
		Score:                  pool.Score,
		Passed:                 pool.Passed,
		RejectionStage:         string(pool.RejectionStage),
		RejectionReasons:       string(reasons),
		LiquidityUSD:           pool.Features.LiquidityUSD,
		LiquidityNative:        pool.Features.LiquidityNative,
		HolderCount:            pool.Features.HolderCount,
		TopHolderPct:           pool.Features.TopHolderPct,
		RugcheckScore:          pool.Features.RugcheckScore,
		MintAuthorityRevoked:   pool.Features.MintAuthorityRevoked,
		FreezeAuthorityRevoked: pool.Features.FreezeAuthorityRevoked,
		GraduationTimeS:        pool.Features.GraduationTimeS,
		BundlePenalty:          pool.Features.BundlePenalty,
		WashPenalty:            pool.Features.WashPenalty,
		OrganicDelta:           pool.Features.OrganicDelta,
		CoordinatedPenalty:     pool.Features.CoordinatedPenalty,
		SmartWalletBonus:       pool.Features.SmartWalletBonus,
		Outcome:                string(outcome),
		CreatedByVersion:       pool.CreatedByVersion,
	}

	return s.db.Where("pool_id = ?", pool.PoolID).
		Assign(record).
		FirstOrCreate(&DetectedPoolRecord{}).Error
}

// SavePosition upserts a position by its unique position_id. Satisfies
// internal/position.Store.
func (s *Store) SavePosition(pos models.Position) error {
	tpLevels, _ := json.Marshal(pos.TPLevelsHit)
	record := PositionRecord{
		PositionID:           pos.PositionID,
		TokenMint:            pos.TokenMint,
		PoolAddress:          pos.PoolAddress,
		Source:               string(pos.Source),
		EntryPrice:           pos.EntryPrice,
		CurrentPrice:         pos.CurrentPrice,
		PeakPrice:            pos.PeakPrice,
		PeakMultiplier:       pos.PeakMultiplier,
		TokenAmount:          pos.TokenAmount,
		SolInvested:          pos.SolInvested,
		SolReturned:          pos.SolReturned,
		PnlSol:               pos.PnlSol,
		PnlPct:               pos.PnlPct,
		Status:               string(pos.Status),
		TPLevelsHit:          string(tpLevels),
		SellAttempts:         pos.SellAttempts,
		SellSuccesses:        pos.SellSuccesses,
		ExitReason:           string(pos.ExitReason),
		OpenedAt:             pos.OpenedAt,
		ClosedAt:             pos.ClosedAt,
		SecurityScore:        pos.SecurityScore,
		EntryLatencyMs:       pos.EntryLatencyMs,
		PostExitPeakMultiple: pos.PostExitPeakMultiple,
		PostExitSampledAt:    pos.PostExitSampledAt,
		TimeToPeakS:          pos.TimeToPeakS,
	}

	return s.db.Where("position_id = ?", pos.PositionID).
		Assign(record).
		FirstOrCreate(&PositionRecord{}).Error
}

// LogPrice appends one price-log row for a position's tick history.
func (s *Store) LogPrice(snap models.PriceSnapshot) error {
	record := PositionPriceLogRecord{
		PositionID:   snap.PositionID,
		Timestamp:    snap.Timestamp,
		Price:        snap.Price,
		Multiple:     snap.Multiple,
		ReserveBase:  snap.ReserveBase,
		ReserveQuote: snap.ReserveQuote,
	}
	return s.db.Create(&record).Error
}

// LogEvent appends one row to the append-only session event log.
func (s *Store) LogEvent(event models.AlertEvent, topic models.Topic) error {
	record := SessionEventRecord{
		Timestamp:  event.Timestamp,
		Topic:      string(topic),
		Severity:   string(event.Severity),
		Kind:       event.Kind,
		Message:    event.Message,
		PositionID: event.PositionID,
		PoolID:     event.PoolID,
	}
	return s.db.Create(&record).Error
}

// IsBlacklisted satisfies internal/scorer.BlacklistChecker.
func (s *Store) IsBlacklisted(wallet string) (models.ScammerBlacklist, bool) {
	var record ScammerBlacklistRecord
	if err := s.db.Where("wallet = ?", wallet).First(&record).Error; err != nil {
		return models.ScammerBlacklist{}, false
	}
	return models.ScammerBlacklist{
		Wallet:         record.Wallet,
		Reason:         record.Reason,
		LinkedRugCount: record.LinkedRugCount,
	}, true
}

// PromoteBlacklist inserts or strengthens a blacklist entry once a funder is
// linked to AutoPromoteThreshold or more distinct rug outcomes.
func (s *Store) PromoteBlacklist(wallet, reason string, linkedRugCount int) error {
	record := ScammerBlacklistRecord{Wallet: wallet, Reason: reason, LinkedRugCount: linkedRugCount}
	return s.db.Where("wallet = ?", wallet).
		Assign(record).
		FirstOrCreate(&ScammerBlacklistRecord{}).Error
}

// Get satisfies internal/scorer.CreatorLookup.
func (s *Store) Get(wallet string) (models.CreatorProfile, bool) {
	var record TokenCreatorRecord
	if err := s.db.Where("creator_wallet = ?", wallet).First(&record).Error; err != nil {
		return models.CreatorProfile{}, false
	}
	var linked []string
	_ = json.Unmarshal([]byte(record.LinkedTokens), &linked)
	return models.CreatorProfile{
		CreatorWallet:    record.CreatorWallet,
		FundingSource:    record.FundingSource,
		WalletAgeSeconds: record.WalletAgeSeconds,
		TxCount:          record.TxCount,
		ReputationScore:  record.ReputationScore,
		RugCount:         record.RugCount,
		WinCount:         record.WinCount,
		LinkedTokens:     linked,
	}, true
}

// SaveCreator upserts a creator profile by wallet.
func (s *Store) SaveCreator(profile models.CreatorProfile) error {
	linked, _ := json.Marshal(profile.LinkedTokens)
	record := TokenCreatorRecord{
		CreatorWallet:    profile.CreatorWallet,
		FundingSource:    profile.FundingSource,
		WalletAgeSeconds: profile.WalletAgeSeconds,
		TxCount:          profile.TxCount,
		ReputationScore:  profile.ReputationScore,
		RugCount:         profile.RugCount,
		WinCount:         profile.WinCount,
		LinkedTokens:     string(linked),
	}
	return s.db.Where("creator_wallet = ?", profile.CreatorWallet).
		Assign(record).
		FirstOrCreate(&TokenCreatorRecord{}).Error
}

// UnscoredPools returns detected pools that still need an outcome label,
// opened more than minAge ago, for the enrichment job.
func (s *Store) UnscoredPools(minAge time.Duration) ([]DetectedPoolRecord, error) {
	var records []DetectedPoolRecord
	cutoff := time.Now().Add(-minAge)
	err := s.db.Where("outcome = ? AND detected_at <= ?", string(models.OutcomeUnknown), cutoff).Find(&records).Error
	return records, err
}

// SetOutcome writes back the enriched outcome label for one pool.
func (s *Store) SetOutcome(poolID string, outcome models.PoolOutcome) error {
	return s.db.Model(&DetectedPoolRecord{}).Where("pool_id = ?", poolID).Update("outcome", string(outcome)).Error
}

// WalletTargets returns every row on the smart-wallet list, curated and
// refreshed alike. Satisfies internal/behavior.WalletTargetStore.
func (s *Store) WalletTargets() ([]models.WalletTarget, error) {
	var records []WalletTargetRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]models.WalletTarget, 0, len(records))
	for _, r := range records {
		out = append(out, models.WalletTarget{Wallet: r.Wallet, Tier: r.Tier, Source: models.WalletTargetSource(r.Source)})
	}
	return out, nil
}

// WalletTargetsStale reports whether the newest refreshed-source row is
// older than threshold, or no refreshed row exists yet.
func (s *Store) WalletTargetsStale(threshold time.Duration) (bool, error) {
	var newest WalletTargetRecord
	err := s.db.Where("source = ?", string(models.WalletTargetRefreshed)).
		Order("updated_at DESC").First(&newest).Error
	if err == gorm.ErrRecordNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return time.Since(newest.UpdatedAt) > threshold, nil
}

// ReplaceRefreshedWalletTargets atomically drops every refreshed-source row
// and inserts wallets in its place, leaving curated entries untouched.
func (s *Store) ReplaceRefreshedWalletTargets(wallets []models.WalletTarget) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ?", string(models.WalletTargetRefreshed)).Delete(&WalletTargetRecord{}).Error; err != nil {
			return err
		}
		for _, w := range wallets {
			record := WalletTargetRecord{Wallet: w.Wallet, Tier: w.Tier, Source: string(w.Source)}
			if err := tx.Where("wallet = ?", w.Wallet).Assign(record).FirstOrCreate(&WalletTargetRecord{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
