// Package config loads the engine's YAML/TOML configuration via Viper,
// modeled on luxfi-evm/cmd/simulator/main/main.go's
// config.BuildFlagSet/config.BuildViper pattern, layered with a fail-fast
// requireEnv shape for secret-bearing values that must never ship a
// default.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Endpoint is one entry of rpc.endpoints[].
type Endpoint struct {
	URL  string   `mapstructure:"url"`
	Tags []string `mapstructure:"tags"`
	QPS  float64  `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// TPLevel is one entry of risk.tp_ladder[].
type TPLevel struct {
	AtMultiplier float64 `mapstructure:"at_multiplier"`
	SellPct      float64 `mapstructure:"sell_pct"`
}

// RiskConfig groups every risk.* option.
type RiskConfig struct {
	MaxConcurrent    int       `mapstructure:"max_concurrent"`
	TradeSizeNative  float64   `mapstructure:"trade_size_native"`
	HardStopPct      float64   `mapstructure:"hard_stop_pct"`
	TrailingPreTP    float64   `mapstructure:"trailing_pre_tp"`
	TrailingPostTP1  float64   `mapstructure:"trailing_post_tp1"`
	TrailingPostTP2  float64   `mapstructure:"trailing_post_tp2"`
	TPLadder         []TPLevel `mapstructure:"tp_ladder"`
	TimeoutS         float64   `mapstructure:"timeout_s"`
	MoonBagPct       float64   `mapstructure:"moon_bag_pct"`
	DrainPct         float64   `mapstructure:"drain_pct"`
	RugObservationS  float64   `mapstructure:"rug_observation_window_s"`
	PostTPFloorMultiple float64 `mapstructure:"post_tp_floor_multiple"`
}

// ExecutionConfig groups every execution.* option.
type ExecutionConfig struct {
	SlippageBps       int        `mapstructure:"slippage_bps"`
	TipLamports       int64      `mapstructure:"tip_lamports"`
	SendEndpoints     []string   `mapstructure:"send_endpoints"`
	MaxRetries        int        `mapstructure:"max_retries"`
	SlippageStepBps   int        `mapstructure:"slippage_step_bps"`
	ConfirmDeadlineS  float64    `mapstructure:"confirm_deadline_s"`
	RebroadcastIntervalS float64 `mapstructure:"rebroadcast_interval_s"`
}

// ScorerWeights groups scorer.weights.*.
type ScorerWeights struct {
	MintAuthority   int `mapstructure:"mint_authority"`
	FreezeAuthority int `mapstructure:"freeze_authority"`
	Liquidity       int `mapstructure:"liquidity"`
	HolderConcentration int `mapstructure:"holder_concentration"`
	LPBurn          int `mapstructure:"lp_burn"`
	ExternalReputation int `mapstructure:"external_reputation"`
}

// ScorerConfig groups every scorer.* option.
type ScorerConfig struct {
	Weights          ScorerWeights `mapstructure:"weights"`
	MinScore         int     `mapstructure:"min_score"`
	MinLiquidityUSD  float64 `mapstructure:"min_liquidity_usd"`
	MinHolders       int     `mapstructure:"min_holders"`
	MaxTopHolderPct  float64 `mapstructure:"max_top_holder_pct"`
	HolderConcentrationTargetPct float64 `mapstructure:"holder_concentration_target_pct"`
	ReputationBonusThreshold int `mapstructure:"reputation_bonus_threshold"`
}

// WalletConfig groups wallet.*.
type WalletConfig struct {
	Secret string `mapstructure:"secret"`
}

// RPCConfig groups rpc.*.
type RPCConfig struct {
	Endpoints []Endpoint `mapstructure:"endpoints"`
}

// Config is the fully resolved, validated engine configuration.
type Config struct {
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Scorer    ScorerConfig    `mapstructure:"scorer"`
	DryRun    bool            `mapstructure:"dry_run"`
	DBPath    string          `mapstructure:"db_path"`
	Port      string          `mapstructure:"port"`
}

// BuildFlagSet declares the CLI-overlay flags, grounded on
// luxfi-evm/cmd/simulator/main/main.go's config.BuildFlagSet.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("engine", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML or TOML config file")
	fs.Bool("dry-run", false, "simulate buys without broadcasting sell-path disabled transactions")
	fs.String("port", "8080", "publish-surface HTTP port")
	return fs
}

// Load reads .env (best-effort, dev convenience only — see
// ChoSanghyuk-blackholedex's godotenv use), then builds a Viper instance from
// the flag set and an optional config file, and decodes + validates it.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	_ = godotenv.Load() // best-effort; missing .env is not an error

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DryRun = v.GetBool("dry-run") || cfg.DryRun
	if p := v.GetString("port"); p != "" {
		cfg.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.slippage_bps", 9500)
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.slippage_step_bps", 500)
	v.SetDefault("execution.confirm_deadline_s", 30)
	v.SetDefault("execution.rebroadcast_interval_s", 2)
	v.SetDefault("risk.max_concurrent", 5)
	v.SetDefault("risk.hard_stop_pct", -30)
	v.SetDefault("risk.trailing_pre_tp", 15)
	v.SetDefault("risk.trailing_post_tp1", 10)
	v.SetDefault("risk.trailing_post_tp2", 8)
	v.SetDefault("risk.timeout_s", 600)
	v.SetDefault("risk.moon_bag_pct", 0)
	v.SetDefault("risk.drain_pct", 50)
	v.SetDefault("risk.rug_observation_window_s", 5)
	v.SetDefault("risk.post_tp_floor_multiple", 1.2)
	v.SetDefault("scorer.min_score", 60)
	v.SetDefault("scorer.min_liquidity_usd", 5000)
	v.SetDefault("scorer.min_holders", 10)
	v.SetDefault("scorer.max_top_holder_pct", 30)
	v.SetDefault("scorer.holder_concentration_target_pct", 10)
	v.SetDefault("scorer.reputation_bonus_threshold", 70)
	v.SetDefault("scorer.weights.mint_authority", 20)
	v.SetDefault("scorer.weights.freeze_authority", 20)
	v.SetDefault("scorer.weights.liquidity", 15)
	v.SetDefault("scorer.weights.holder_concentration", 20)
	v.SetDefault("scorer.weights.lp_burn", 15)
	v.SetDefault("scorer.weights.external_reputation", 10)
	v.SetDefault("db_path", "engine.db")
	v.SetDefault("port", "8080")
}

// Validate enforces the required-field and range invariants that must hold
// before the core starts trading. Data-integrity errors like these are
// fatal at startup only.
func (c *Config) Validate() error {
	if c.Wallet.Secret == "" {
		return fmt.Errorf("wallet.secret is required")
	}
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("rpc.endpoints must have at least one entry")
	}
	for _, ep := range c.RPC.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("rpc.endpoints: url is required")
		}
		if ep.QPS <= 0 {
			return fmt.Errorf("rpc.endpoints[%s]: qps must be positive", ep.URL)
		}
	}
	if c.Risk.MaxConcurrent <= 0 {
		return fmt.Errorf("risk.max_concurrent must be positive")
	}
	if c.Risk.TradeSizeNative <= 0 {
		return fmt.Errorf("risk.trade_size_native must be positive")
	}
	for _, lvl := range c.Risk.TPLadder {
		if lvl.AtMultiplier <= 1 {
			return fmt.Errorf("risk.tp_ladder: at_multiplier must exceed 1.0")
		}
		if lvl.SellPct <= 0 || lvl.SellPct > 1 {
			return fmt.Errorf("risk.tp_ladder: sell_pct must be in (0,1]")
		}
	}
	if c.Scorer.MinScore < 0 || c.Scorer.MinScore > 100 {
		return fmt.Errorf("scorer.min_score must be within [0,100]")
	}
	return nil
}

// EndpointsByTag returns every configured endpoint carrying the given
// capability tag, from the {primary, analysis, bundle} partition.
func (c *Config) EndpointsByTag(tag string) []Endpoint {
	var out []Endpoint
	for _, ep := range c.RPC.Endpoints {
		for _, t := range ep.Tags {
			if t == tag {
				out = append(out, ep)
				break
			}
		}
	}
	return out
}
