package scorer

import (
	"testing"

	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/pkg/models"
)

type fakeBlacklist struct {
	blocked map[string]bool
}

func (f *fakeBlacklist) IsBlacklisted(wallet string) (models.ScammerBlacklist, bool) {
	if f.blocked[wallet] {
		return models.ScammerBlacklist{Wallet: wallet, Reason: "test"}, true
	}
	return models.ScammerBlacklist{}, false
}

type fakeCreators struct {
	profiles map[string]models.CreatorProfile
}

func (f *fakeCreators) Get(wallet string) (models.CreatorProfile, bool) {
	p, ok := f.profiles[wallet]
	return p, ok
}

func defaultCfg() config.ScorerConfig {
	return config.ScorerConfig{
		Weights: config.ScorerWeights{
			MintAuthority:       20,
			FreezeAuthority:     20,
			Liquidity:           15,
			HolderConcentration: 20,
			LPBurn:              15,
			ExternalReputation:  10,
		},
		MinScore:                     60,
		MinLiquidityUSD:               5000,
		MinHolders:                    10,
		MaxTopHolderPct:                30,
		HolderConcentrationTargetPct:   10,
		ReputationBonusThreshold:       70,
	}
}

func noopBlacklist() *fakeBlacklist  { return &fakeBlacklist{blocked: map[string]bool{}} }
func noopCreators() *fakeCreators    { return &fakeCreators{profiles: map[string]models.CreatorProfile{}} }

func perfectChecks() models.SecurityChecks {
	score := 90
	return models.SecurityChecks{
		MintAuthorityRevoked:   true,
		FreezeAuthorityRevoked: true,
		IsHoneypot:             false,
		HoneypotVerified:       true,
		LiquidityUSD:           10000,
		HolderCount:            50,
		TopHolderPct:           5,
		LPBurned:               true,
		RugcheckScore:          &score,
	}
}

func TestEvaluatePerfectCandidateClampsTo100(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	result := s.Evaluate(candidate, perfectChecks(), models.AnalyzerResults{})

	if !result.Passed {
		t.Fatalf("expected pass, got rejection %s: %v", result.RejectionStage, result.RejectionReasons)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d (breakdown %+v)", result.Score, result.Breakdown)
	}
}

func TestEvaluatePartialLiquidityScoresNinetyThree(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.LiquidityUSD = 2500 // min_liquidity_usd = 5000, half credit

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})

	if !result.Passed {
		t.Fatalf("expected pass, got rejection %s: %v", result.RejectionStage, result.RejectionReasons)
	}
	if result.Score != 93 {
		t.Fatalf("expected score 93, got %d (breakdown %+v)", result.Score, result.Breakdown)
	}
	if result.Breakdown.LiquidityContrib != 8 {
		t.Fatalf("expected liquidity contribution 8, got %d", result.Breakdown.LiquidityContrib)
	}
}

func TestEvaluateScoreExactlyAtMinScoreAccepts(t *testing.T) {
	cfg := defaultCfg()
	cfg.MinScore = 93
	s := New(cfg, noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.LiquidityUSD = 2500

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})
	if !result.Passed {
		t.Fatalf("score exactly at min_score must pass, got rejection %s", result.RejectionStage)
	}
}

func TestEvaluateBlacklistedFunderRejectsCleanToken(t *testing.T) {
	s := New(defaultCfg(), &fakeBlacklist{blocked: map[string]bool{"Creator1": true}}, noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	result := s.Evaluate(candidate, perfectChecks(), models.AnalyzerResults{})

	if result.Passed {
		t.Fatal("expected blacklisted creator to reject regardless of clean checks")
	}
	if result.RejectionStage != models.StageBlacklist {
		t.Fatalf("expected blacklisted rejection stage, got %s", result.RejectionStage)
	}
}

func TestEvaluateVerifiedHoneypotRejectsBeforeScoring(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.IsHoneypot = true
	checks.HoneypotVerified = true

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})
	if result.Passed || result.RejectionStage != models.StageHoneypot {
		t.Fatalf("expected honeypot rejection, got %s passed=%v", result.RejectionStage, result.Passed)
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0 on structural veto, got %d", result.Score)
	}
}

func TestEvaluateUnverifiedHoneypotDoesNotVeto(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.IsHoneypot = true
	checks.HoneypotVerified = false // unverified suspicion, benefit of the doubt

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})
	if result.RejectionStage == models.StageHoneypot {
		t.Fatal("unverified honeypot flag must not veto")
	}
}

func TestEvaluateLowLiquidityRejectsAtFloor(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.LiquidityUSD = 100

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})
	if result.RejectionStage != models.StageLowLiq {
		t.Fatalf("expected low_liq rejection, got %s", result.RejectionStage)
	}
}

func TestEvaluateAnalyzerDeltasFeedIntoScore(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), noopCreators())
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	analyzers := models.AnalyzerResults{Bundle: models.BundleLaunchResult{Penalty: -15}}
	result := s.Evaluate(candidate, perfectChecks(), analyzers)

	if result.Score != 85 {
		t.Fatalf("expected analyzer penalty to reduce clamped score to 85, got %d", result.Score)
	}
}

func TestEvaluateCreatorReputationClampedContribution(t *testing.T) {
	s := New(defaultCfg(), noopBlacklist(), &fakeCreators{profiles: map[string]models.CreatorProfile{
		"Creator1": {CreatorWallet: "Creator1", ReputationScore: 1000},
	}})
	candidate := models.DetectedPool{BaseMint: "Mint1", Creator: "Creator1"}

	checks := perfectChecks()
	checks.LiquidityUSD = 2500 // avoid saturating at the 100 clamp so the bound is visible

	result := s.Evaluate(candidate, checks, models.AnalyzerResults{})
	if result.Breakdown.CreatorReputation != creatorReputationCeil {
		t.Fatalf("expected creator reputation contribution capped at %d, got %d", creatorReputationCeil, result.Breakdown.CreatorReputation)
	}
}
