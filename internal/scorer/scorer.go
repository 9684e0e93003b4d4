// Package scorer implements the decision protocol: a strict five-stage
// veto/score pipeline over the security checks and behavioral analyzer
// results. The additive, clamped, signal-list scoring shape is modeled on
// an earlier ScoreTransaction risk scorer, restructured from "accumulate
// then classify severity" into "veto in strict order, then accumulate,
// then threshold".
package scorer

import (
	"math"

	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/pkg/models"
)

const baseScore = 0

// creatorReputationFloor/Ceil bound the raw CreatorProfile.ReputationScore
// contribution so a long rap sheet or a long win streak cannot alone
// dominate the score (the final total is clamped, but an unclamped
// per-signal contribution would let one signal swamp every other).
const (
	creatorReputationFloor = -20
	creatorReputationCeil  = 20
)

// BlacklistChecker is the O(1) veto lookup C6 depends on.
type BlacklistChecker interface {
	IsBlacklisted(wallet string) (models.ScammerBlacklist, bool)
}

// CreatorLookup resolves a wallet's reputation profile, if one exists yet.
type CreatorLookup interface {
	Get(wallet string) (models.CreatorProfile, bool)
}

// Scorer evaluates candidates against the configured thresholds and weights.
type Scorer struct {
	cfg       config.ScorerConfig
	blacklist BlacklistChecker
	creators  CreatorLookup
}

func New(cfg config.ScorerConfig, blacklist BlacklistChecker, creators CreatorLookup) *Scorer {
	return &Scorer{cfg: cfg, blacklist: blacklist, creators: creators}
}

// Evaluate runs the full decision protocol against one candidate. Stages 1-3
// are always fully evaluated so every failed rule is logged (an
// observation-mode requirement); a veto at any of those stages forces
// Passed=false and skips score assembly, regardless of how the remaining
// stage-1..3 rules resolve.
func (s *Scorer) Evaluate(candidate models.DetectedPool, checks models.SecurityChecks, analyzers models.AnalyzerResults) models.ScoreResult {
	var reasons []string
	var vetoStage models.RejectionStage

	recordVeto := func(stage models.RejectionStage, reason string) {
		reasons = append(reasons, reason)
		if vetoStage == models.StageNone {
			vetoStage = stage
		}
	}

	// Stage 1: hard veto.
	if _, blocked := s.blacklist.IsBlacklisted(candidate.BaseMint); blocked {
		recordVeto(models.StageBlacklist, "blacklisted")
	}
	if _, blocked := s.blacklist.IsBlacklisted(candidate.Creator); blocked {
		recordVeto(models.StageBlacklist, "blacklisted")
	}

	// Stage 2: structural veto.
	if checks.IsHoneypot && checks.HoneypotVerified {
		recordVeto(models.StageHoneypot, "honeypot")
	}
	if !checks.FreezeAuthorityRevoked && !checks.FreezeAuthorityUnknown {
		recordVeto(models.StageFreezeAuth, "freeze_auth")
	}
	if !checks.MintAuthorityRevoked && !checks.MintAuthorityUnknown {
		recordVeto(models.StageMintAuth, "mint_auth")
	}

	// Stage 3: floor veto.
	if !checks.LiquidityUnknown && checks.LiquidityUSD < s.cfg.MinLiquidityUSD {
		recordVeto(models.StageLowLiq, "low_liq")
	}
	if !checks.HolderDataPartial && checks.HolderCount < s.cfg.MinHolders {
		recordVeto(models.StageLowHolders, "low_holders")
	}

	if vetoStage != models.StageNone {
		return models.ScoreResult{
			Score:            0,
			Passed:           false,
			RejectionStage:   vetoStage,
			RejectionReasons: reasons,
		}
	}

	// Stage 4: score assembly.
	breakdown := s.assemble(candidate, checks, analyzers)

	// Stage 5: passing threshold.
	passed := breakdown.Total >= s.cfg.MinScore
	if !passed {
		reasons = append(reasons, "score")
		return models.ScoreResult{
			Score:            breakdown.Total,
			Passed:           false,
			RejectionStage:   models.StageScore,
			RejectionReasons: reasons,
			Breakdown:        breakdown,
		}
	}

	return models.ScoreResult{
		Score:     breakdown.Total,
		Passed:    true,
		Breakdown: breakdown,
	}
}

func (s *Scorer) assemble(candidate models.DetectedPool, checks models.SecurityChecks, analyzers models.AnalyzerResults) models.ScoreBreakdown {
	w := s.cfg.Weights

	structuralBonus := 0
	if checks.MintAuthorityRevoked {
		structuralBonus += w.MintAuthority
	}
	if checks.FreezeAuthorityRevoked {
		structuralBonus += w.FreezeAuthority
	}

	liquidityContrib := piecewiseLinear(checks.LiquidityUSD, s.cfg.MinLiquidityUSD, w.Liquidity)
	holderContrib := concentrationContrib(checks.TopHolderPct, s.cfg.HolderConcentrationTargetPct, s.cfg.MaxTopHolderPct, w.HolderConcentration)

	lpBonus := 0
	switch {
	case checks.LPBurned:
		lpBonus = w.LPBurn
	case checks.LPLockedPct > 50:
		lpBonus = int(float64(w.LPBurn) * (checks.LPLockedPct / 100))
	}

	reputationBonus := 0
	if checks.RugcheckScore != nil && *checks.RugcheckScore >= s.cfg.ReputationBonusThreshold {
		reputationBonus = w.ExternalReputation
	}

	analyzerDelta := analyzers.TotalDelta()

	creatorReputation := 0
	if s.creators != nil {
		if profile, ok := s.creators.Get(candidate.Creator); ok {
			creatorReputation = clampInt(profile.ReputationScore, creatorReputationFloor, creatorReputationCeil)
		}
	}

	total := baseScore + structuralBonus + liquidityContrib + holderContrib + lpBonus +
		reputationBonus + analyzerDelta + creatorReputation
	total = clampInt(total, 0, 100)

	return models.ScoreBreakdown{
		Base:              baseScore,
		StructuralBonus:   structuralBonus,
		LiquidityContrib:  liquidityContrib,
		HolderContrib:     holderContrib,
		LPBonus:           lpBonus,
		ReputationBonus:   reputationBonus,
		AnalyzerDelta:     analyzerDelta,
		CreatorReputation: creatorReputation,
		Total:             total,
	}
}

// piecewiseLinear awards full weight at/above target, proportional credit
// below it, floored at zero.
func piecewiseLinear(value, target float64, weight int) int {
	if target <= 0 {
		return weight
	}
	frac := value / target
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return int(math.Round(frac * float64(weight)))
}

// concentrationContrib awards full weight at/below target (lower
// concentration is better), proportional credit between target and the
// floor-veto ceiling, zero at/beyond the ceiling.
func concentrationContrib(topHolderPct, target, ceiling float64, weight int) int {
	if topHolderPct <= target {
		return weight
	}
	if ceiling <= target {
		return 0
	}
	frac := (ceiling - topHolderPct) / (ceiling - target)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return int(math.Round(frac * float64(weight)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
