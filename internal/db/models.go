// Package db implements the embedded relational store: detected_pools,
// positions, position_price_log, token_creators, scammer_blacklist,
// wallet_targets, session_events. Struct-tag modeling, AutoMigrate, and
// TableName() are modeled directly on
// ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go; the driver
// is swapped from gorm.io/driver/mysql to gorm.io/driver/sqlite so the store
// is embedded in the process rather than requiring a standalone server (see
// DESIGN.md).
package db

import "time"

// DetectedPoolRecord mirrors models.DetectedPool, flattened for storage.
type DetectedPoolRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	PoolID           string    `gorm:"uniqueIndex;not null"`
	Source           string    `gorm:"index;not null"`
	PoolAddress      string    `gorm:"not null"`
	BaseMint         string    `gorm:"index;not null"`
	QuoteMint        string    `gorm:"not null"`
	Creator          string    `gorm:"index"`
	DetectedAt       time.Time `gorm:"index;not null"`
	Slot             uint64
	TxSignature      string

	Score            int
	Passed           bool
	RejectionStage   string
	RejectionReasons string // JSON-encoded []string

	LiquidityUSD           float64
	LiquidityNative        float64
	HolderCount            int
	TopHolderPct           float64
	RugcheckScore          *int
	MintAuthorityRevoked   bool
	FreezeAuthorityRevoked bool
	GraduationTimeS        float64
	BundlePenalty          int
	WashPenalty            int
	OrganicDelta           int
	CoordinatedPenalty     int
	SmartWalletBonus       int

	Outcome          string `gorm:"index"`
	CreatedByVersion string

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (DetectedPoolRecord) TableName() string { return "detected_pools" }

// PositionRecord mirrors models.Position.
type PositionRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	PositionID    string `gorm:"uniqueIndex;not null"`
	TokenMint     string `gorm:"index;not null"`
	PoolAddress   string `gorm:"not null"`
	Source        string `gorm:"not null"`

	EntryPrice     float64
	CurrentPrice   float64
	PeakPrice      float64
	PeakMultiplier float64

	TokenAmount   float64
	SolInvested   float64
	SolReturned   float64
	PnlSol        float64
	PnlPct        float64

	Status        string `gorm:"index"`
	TPLevelsHit   string // JSON-encoded []int

	SellAttempts  int
	SellSuccesses int
	ExitReason    string `gorm:"index"`

	OpenedAt       time.Time `gorm:"index;not null"`
	ClosedAt       *time.Time
	SecurityScore  int
	EntryLatencyMs int64

	PostExitPeakMultiple float64
	PostExitSampledAt    *time.Time
	TimeToPeakS          float64

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PositionRecord) TableName() string { return "positions" }

// PositionPriceLogRecord mirrors models.PriceSnapshot.
type PositionPriceLogRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	PositionID   string    `gorm:"index;not null"`
	Timestamp    time.Time `gorm:"index;not null"`
	Price        float64
	Multiple     float64
	ReserveBase  float64
	ReserveQuote float64
}

func (PositionPriceLogRecord) TableName() string { return "position_price_log" }

// TokenCreatorRecord mirrors models.CreatorProfile.
type TokenCreatorRecord struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	CreatorWallet    string `gorm:"uniqueIndex;not null"`
	FundingSource    string
	WalletAgeSeconds int64
	TxCount          int
	ReputationScore  int
	RugCount         int
	WinCount         int
	LinkedTokens     string // JSON-encoded []string

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TokenCreatorRecord) TableName() string { return "token_creators" }

// ScammerBlacklistRecord mirrors models.ScammerBlacklist.
type ScammerBlacklistRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Wallet         string `gorm:"uniqueIndex;not null"`
	Reason         string
	LinkedRugCount int

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ScammerBlacklistRecord) TableName() string { return "scammer_blacklist" }

// WalletTargetRecord is a smart-wallet watchlist entry.
type WalletTargetRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Wallet    string `gorm:"uniqueIndex;not null"`
	Tier      string
	Source    string
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (WalletTargetRecord) TableName() string { return "wallet_targets" }

// SessionEventRecord is an append-only operator-visible event log row,
// mirroring models.AlertEvent plus every topic the event bus carries.
type SessionEventRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index;not null"`
	Topic      string    `gorm:"index;not null"`
	Severity   string
	Kind       string
	Message    string
	PositionID string `gorm:"index"`
	PoolID     string `gorm:"index"`
}

func (SessionEventRecord) TableName() string { return "session_events" }
