// Command engine is the process entrypoint: it wires every component built
// across this module into one trading loop and serves the publish surface
// alongside it. The urfave/cli/v2 flag/flag-set layering is modeled on
// luxfi-evm's cmd/evm-node entrypoints, and the fail-fast required-value
// shape (wallet secret, RPC endpoints) follows a requireEnv/getEnvOrDefault
// pattern, generalized to the config package's own Validate step.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sniperbot/engine/internal/behavior"
	"github.com/sniperbot/engine/internal/cache"
	"github.com/sniperbot/engine/internal/cleanup"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/db"
	"github.com/sniperbot/engine/internal/detector"
	"github.com/sniperbot/engine/internal/eventbus"
	"github.com/sniperbot/engine/internal/execution"
	"github.com/sniperbot/engine/internal/position"
	"github.com/sniperbot/engine/internal/rpcpool"
	"github.com/sniperbot/engine/internal/scorer"
	"github.com/sniperbot/engine/internal/security"
	"github.com/sniperbot/engine/internal/telemetry"
	"github.com/sniperbot/engine/pkg/models"
)

// Exit codes for the CLI surface.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitWalletError   = 2
	exitStoreError    = 3
	exitSignalTerminated = 130
)

func main() {
	app := &cli.App{
		Name:            "engine",
		Usage:           "automated on-chain sniping agent for newly-launched pools",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			run(c.Args().Slice())
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(exitConfigError)
	}
}

// run wires every component together and blocks until the context is
// cancelled by a signal or the telemetry server fails. config.Load does the
// real flag parse (--config, --dry-run, --port) against its own pflag.FlagSet;
// urfave/cli only supplies the process-level shell (--help, --version).
func run(args []string) {
	flagSet := config.BuildFlagSet()
	cfg, err := config.Load(flagSet, args)
	if err != nil {
		log.Printf("FATAL: configuration error: %v", err)
		os.Exit(exitConfigError)
	}

	signer, err := newWalletSigner(cfg.Wallet.Secret)
	if err != nil {
		log.Printf("FATAL: wallet error: %v", err)
		os.Exit(exitWalletError)
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Printf("FATAL: persistence error: %v", err)
		os.Exit(exitStoreError)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := rpcpool.New(cfg.RPC.Endpoints)
	defer pool.Close()

	blockhashCache := cache.NewBlockhashCache(pool)
	balanceCache := cache.NewBalanceCache(pool, signer.PublicKey())
	defer balanceCache.Close()
	sigCache := cache.NewSignatureListCache(2048)

	bus := eventbus.New()

	logSource := newWSLogSource(cfg)
	det := detector.New(models.AllSources, logSource, bus)

	checker := security.NewChecker(pool, "")
	analyzer := behavior.NewAnalyzer(pool, sigCache)
	sc := scorer.New(cfg.Scorer, store, store)

	trendingFeed := newTrendingFeedClient(firstTaggedURL(cfg, "trending", "https://trending.local"))
	walletTargets := behavior.NewWalletListRefresher(trendingFeed, pool, store)

	aggregator := newAggregatorClient(firstAggregatorURL(cfg))
	execEngine := execution.New(pool, signer, aggregator, blockhashCache, cfg.Execution, cfg.DryRun)

	reserves := &reservesAdapter{pool: pool}
	posManager := position.NewManager(reserves, execEngine, bus, store, cfg.Risk)

	accounts := newAccountRPC(pool, signer)
	sweeper := cleanup.NewSweeper(accounts, posManager, accounts, signer.PublicKey(), 0)

	enrichment := db.NewEnrichmentJob(store, reserves)

	hr := &health{pool: pool, balance: balanceCache}
	srv := telemetry.NewServer(bus, hr, cfg.Port)

	go det.Run(ctx)
	go sweeper.Run(ctx)
	go enrichment.Run(ctx)
	go walletTargets.Run(ctx, walletRefreshCheckInterval)
	go runDecisionLoop(ctx, bus, checker, analyzer, sc, execEngine, posManager, sweeper, walletTargets, cfg)

	if err := srv.Run(ctx); err != nil {
		log.Printf("telemetry server stopped: %v", err)
	}

	if ctx.Err() != nil {
		os.Exit(exitSignalTerminated)
	}
	os.Exit(exitOK)
}

// walletRefreshCheckInterval is how often the smart-wallet list's staleness
// is re-checked; the refresh itself only fires once walletTargetStaleThreshold
// has actually elapsed.
const walletRefreshCheckInterval = 15 * time.Minute

func firstAggregatorURL(cfg *config.Config) string {
	return firstTaggedURL(cfg, "aggregator", "https://aggregator.local")
}

// firstTaggedURL returns the first rpc.endpoints[] entry carrying tag, or
// def if none is configured.
func firstTaggedURL(cfg *config.Config, tag, def string) string {
	for _, ep := range cfg.RPC.Endpoints {
		for _, t := range ep.Tags {
			if t == tag {
				return ep.URL
			}
		}
	}
	return def
}

// runDecisionLoop is the "missing middle" between detection and the
// position manager: for each PoolDetected candidate it fans out the C4/C5
// checks concurrently, scores the result, and on a pass buys and opens a
// position. It also triggers a targeted cleanup sweep on every full exit,
// once per exiting mint.
func runDecisionLoop(
	ctx context.Context,
	bus *eventbus.Bus,
	checker *security.Checker,
	analyzer *behavior.Analyzer,
	sc *scorer.Scorer,
	execEngine *execution.Engine,
	posManager *position.Manager,
	sweeper *cleanup.Sweeper,
	walletTargets *behavior.WalletListRefresher,
	cfg *config.Config,
) {
	detected := bus.Subscribe(models.TopicPoolDetected)
	defer detected.Unsubscribe()
	closed := bus.Subscribe(models.TopicPositionClosed)
	defer closed.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-detected.C:
			candidate, ok := payload.(models.DetectedPool)
			if !ok {
				continue
			}
			go evaluateCandidate(ctx, candidate, checker, analyzer, sc, execEngine, posManager, bus, walletTargets, cfg)
		case payload := <-closed.C:
			pos, ok := payload.(models.Position)
			if !ok {
				continue
			}
			sweeper.SweepMint(ctx, pos.TokenMint)
		}
	}
}

func evaluateCandidate(
	ctx context.Context,
	candidate models.DetectedPool,
	checker *security.Checker,
	analyzer *behavior.Analyzer,
	sc *scorer.Scorer,
	execEngine *execution.Engine,
	posManager *position.Manager,
	bus *eventbus.Bus,
	walletTargets *behavior.WalletListRefresher,
	cfg *config.Config,
) {
	checks := checker.Run(ctx, candidate)
	analyzers := analyzer.RunAll(ctx, candidate, walletTargets.List())

	result := sc.Evaluate(candidate, checks, analyzers)
	candidate.Score = result.Score
	candidate.Passed = result.Passed
	candidate.RejectionStage = result.RejectionStage
	candidate.RejectionReasons = result.RejectionReasons
	bus.Publish(models.TopicScored, candidate)

	if !result.Passed {
		return
	}
	if !posManager.TryAdmit() {
		return
	}

	lamports := int64(cfg.Risk.TradeSizeNative * 1e9)
	order := execution.Order{
		Side:                 execution.SideBuy,
		Source:               candidate.Source,
		PoolAddress:          candidate.PoolAddress,
		InputMint:            candidate.QuoteMint,
		OutputMint:           candidate.BaseMint,
		AmountIn:             lamports,
		SlippageBps:          cfg.Execution.SlippageBps,
		TipLamports:          cfg.Execution.TipLamports,
		ConfirmationDeadline: 0,
	}
	trade := execEngine.Execute(ctx, order)
	if !trade.Success {
		posManager.Release()
		log.Printf("[engine] buy failed for %s (%s): %s", candidate.PoolID, candidate.PoolAddress, trade.Error)
		return
	}

	pos := models.Position{
		PositionID:    candidate.PoolID,
		TokenMint:     candidate.BaseMint,
		PoolAddress:   candidate.PoolAddress,
		Source:        candidate.Source,
		EntryPrice:    float64(lamports) / float64(trade.OutputAmount),
		TokenAmount:   float64(trade.OutputAmount),
		SolInvested:   cfg.Risk.TradeSizeNative,
		Status:        models.StatusOpen,
		SecurityScore: result.Score,
		OpenedAt:      time.Now(),
	}
	posManager.Open(ctx, pos)
}
