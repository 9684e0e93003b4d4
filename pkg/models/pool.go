package models

import "time"

// PoolOutcome is the later-enriched ground-truth label for a detected pool.
type PoolOutcome string

const (
	OutcomeUnknown  PoolOutcome = "unknown"
	OutcomeRug      PoolOutcome = "rug"
	OutcomeSurvivor PoolOutcome = "survivor"
)

// RejectionStage identifies which stage of the scorer's decision protocol
// short-circuited evaluation.
type RejectionStage string

const (
	StageNone       RejectionStage = ""
	StageBlacklist  RejectionStage = "blacklisted"
	StageHoneypot   RejectionStage = "honeypot"
	StageFreezeAuth RejectionStage = "freeze_auth"
	StageMintAuth   RejectionStage = "mint_auth"
	StageLowLiq     RejectionStage = "low_liq"
	StageLowHolders RejectionStage = "low_holders"
	StageScore      RejectionStage = "score"
	StageMaxConcurrent RejectionStage = "max_concurrent"
)

// FeatureSnapshot is the immutable-after-scoring bundle of structural,
// historical, and behavioral signals gathered for a candidate pool.
type FeatureSnapshot struct {
	LiquidityUSD      float64 `json:"liquidityUsd"`
	LiquidityNative    float64 `json:"liquidityNative"`
	HolderCount       int     `json:"holderCount"`
	TopHolderPct      float64 `json:"topHolderPct"`
	RugcheckScore     *int    `json:"rugcheckScore,omitempty"` // nil == undefined/non-veto
	MintAuthorityRevoked   bool `json:"mintAuthorityRevoked"`
	FreezeAuthorityRevoked bool `json:"freezeAuthorityRevoked"`
	GraduationTimeS   float64 `json:"graduationTimeS"`

	BundlePenalty       int     `json:"bundlePenalty"`
	WashPenalty         int     `json:"washPenalty"`
	OrganicDelta        int     `json:"organicDelta"`
	CoordinatedPenalty  int     `json:"coordinatedPenalty"`
	SmartWalletBonus    int     `json:"smartWalletBonus"`

	CreatorWallet string `json:"creatorWallet"`
}

// DetectedPool is a candidate pool under evaluation.
type DetectedPool struct {
	PoolID         string    `json:"poolId"`
	Source         AMMSource `json:"source"`
	PoolAddress    string    `json:"poolAddress"`
	BaseMint       string    `json:"baseMint"`
	QuoteMint      string    `json:"quoteMint"` // always the wrapped native asset
	Creator        string    `json:"creator"`
	DetectedAt     time.Time `json:"detectedAt"`
	Slot           uint64    `json:"slot"`
	TxSignature    string    `json:"txSignature"`

	Score            int            `json:"score"`
	Passed           bool           `json:"passed"`
	RejectionStage   RejectionStage `json:"rejectionStage"`
	RejectionReasons []string       `json:"rejectionReasons"`

	Features FeatureSnapshot `json:"features"`
	Outcome  PoolOutcome     `json:"outcome"`

	CreatedByVersion string `json:"createdByVersion"`
}

// PriceSnapshot is an optional per-position time series point, used for
// post-mortem review and trailing-stop calculations. Nothing derived from a
// post-exit snapshot feeds back into a live exit decision.
type PriceSnapshot struct {
	PositionID string    `json:"positionId"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Multiple   float64   `json:"multiple"`
	ReserveBase  float64 `json:"reserveBase"`
	ReserveQuote float64 `json:"reserveQuote"`
}
