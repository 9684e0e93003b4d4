package models

// CreatorProfile is the reputation accumulator for a token-launch wallet.
// reputation_score is append-only via outcome events; never edited in
// place.
type CreatorProfile struct {
	CreatorWallet   string   `json:"creatorWallet"`
	FundingSource   string   `json:"fundingSource"`
	WalletAgeSeconds int64   `json:"walletAgeSeconds"`
	TxCount         int      `json:"txCount"`
	ReputationScore int      `json:"reputationScore"`
	RugCount        int      `json:"rugCount"`
	WinCount        int      `json:"winCount"`
	LinkedTokens    []string `json:"linkedTokens"`
}

// reputationForOutcome is the deterministic per-outcome tally applied to a
// CreatorProfile's reputation_score: a deterministic function of tallied
// outcomes.
func reputationForOutcome(outcome PoolOutcome) int {
	switch outcome {
	case OutcomeRug:
		return -25
	case OutcomeSurvivor:
		return 10
	default:
		return 0
	}
}

// ApplyOutcome appends an outcome event to the profile, mutating the tally
// fields and reputation_score deterministically. Append-only: callers must
// never roll a tally back; corrections are modeled as a new event.
func (c *CreatorProfile) ApplyOutcome(tokenMint string, outcome PoolOutcome) {
	switch outcome {
	case OutcomeRug:
		c.RugCount++
	case OutcomeSurvivor:
		c.WinCount++
	}
	c.ReputationScore += reputationForOutcome(outcome)
	for _, m := range c.LinkedTokens {
		if m == tokenMint {
			return
		}
	}
	c.LinkedTokens = append(c.LinkedTokens, tokenMint)
}

// ScammerBlacklist is the O(1) veto set.
type ScammerBlacklist struct {
	Wallet          string `json:"wallet"`
	Reason          string `json:"reason"`
	LinkedRugCount  int    `json:"linkedRugCount"`
}

// AutoPromoteThreshold is the number of distinct rug outcomes linked to a
// single funder that triggers automatic blacklisting.
const AutoPromoteThreshold = 3

// WalletTargetSource distinguishes a manually-curated smart-wallet entry
// from one the refresher derived from trending-feed sampling, so a refresh
// cycle can safely replace its own rows without touching curated ones.
type WalletTargetSource string

const (
	WalletTargetCurated   WalletTargetSource = "curated"
	WalletTargetRefreshed WalletTargetSource = "refreshed"
)

// WalletTarget is one entry on the smart-wallet list the C5 SmartWallet
// check scores candidates against.
type WalletTarget struct {
	Wallet string
	Tier   string
	Source WalletTargetSource
}
