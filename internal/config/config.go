// Package config defines the top-level configuration for the arbiter engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBITER_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Sizer    SizerConfig    `toml:"sizer"`
	RugPull  RugPullConfig  `toml:"rugpull"`
	Executor ExecutorConfig `toml:"executor"`
	Cycle    CycleConfig    `toml:"cycle"`
	Venues   map[string]VenueConfig `toml:"venues"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds pipeline-level parameters.
type EngineConfig struct {
	InitialCapitalUSD float64  `toml:"initial_capital_usd"`
	PassInterval      duration `toml:"pass_interval"`
}

// SnapshotConfig holds quote-store parameters.
type SnapshotConfig struct {
	StaleAfter duration `toml:"stale_after"`
}

// StrategyConfig holds evaluator thresholds and the instrument relationship
// tables the evaluators consume.
type StrategyConfig struct {
	MinWinRate       float64 `toml:"min_win_rate"`
	MinConfidence    float64 `toml:"min_confidence"`
	PriorWinRate     float64 `toml:"prior_win_rate"`
	MinSampleSize    int     `toml:"min_sample_size"`
	DefaultTTL       duration `toml:"default_ttl"`
	TargetSizeUSD    float64 `toml:"target_size_usd"`
	Enabled          []string `toml:"enabled"`

	CexCex      SpreadStrategyConfig     `toml:"cex_cex"`
	DexDex      SpreadStrategyConfig     `toml:"dex_dex"`
	CexDex      SpreadStrategyConfig     `toml:"cex_dex"`
	Triangular  TriangularConfig         `toml:"triangular"`
	Funding     FundingConfig            `toml:"funding_rate"`
	Statistical StatisticalConfig        `toml:"statistical"`
	CrossChain  CrossChainConfig         `toml:"cross_chain"`
}

// SpreadStrategyConfig parameterizes the two-leg spread families.
type SpreadStrategyConfig struct {
	MinEdgeBps float64 `toml:"min_edge_bps"`
}

// TriangularConfig holds the three-instrument cycle sets per venue.
type TriangularConfig struct {
	MinEdgeBps float64 `toml:"min_edge_bps"`
	// Cycles lists instrument triples, e.g. ["BTC/USDT", "ETH/BTC", "ETH/USDT"].
	Cycles [][]string `toml:"cycles"`
}

// FundingConfig holds the spot/perp venue pairs for funding-rate capture.
type FundingConfig struct {
	MinRateBps float64 `toml:"min_rate_bps"`
	// Pairs maps a spot venue to the perp venue quoting the same instrument.
	Pairs map[string]string `toml:"pairs"`
}

// StatisticalConfig parameterizes z-score pair trading on pre-scored pairs.
type StatisticalConfig struct {
	MinEdgeBps float64 `toml:"min_edge_bps"`
	// Ratio is the historical price ratio per "instA|instB" pair key.
	Ratio        map[string]float64 `toml:"ratio"`
	EntryZ       float64            `toml:"entry_z"`
	RatioStddev  map[string]float64 `toml:"ratio_stddev"`
}

// CrossChainConfig holds bridge-cost assumptions per chain pair.
type CrossChainConfig struct {
	MinEdgeBps   float64            `toml:"min_edge_bps"`
	BridgeFeeUSD map[string]float64 `toml:"bridge_fee_usd"` // "chainA->chainB"
}

// RiskConfig holds the circuit-breaker thresholds and reservation limits.
type RiskConfig struct {
	CapitalAtRiskFraction   float64 `toml:"capital_at_risk_fraction"`
	MaxPositionFraction     float64 `toml:"max_position_fraction"`
	MaxPositions            int     `toml:"max_positions"`
	DailyLossLimitUSD       float64 `toml:"daily_loss_limit_usd"`
	MaxConsecutiveLosses    int     `toml:"max_consecutive_losses"`
	VolatilitySpikeMultiple float64 `toml:"volatility_spike_multiple"`
	CorrelationThreshold    float64 `toml:"correlation_threshold"`
	WarningFraction         float64 `toml:"warning_fraction"`
}

// SizerConfig holds fractional-Kelly parameters.
type SizerConfig struct {
	KellyFraction float64 `toml:"kelly_fraction"`
}

// RugPullConfig holds the pre-trade token screen thresholds.
type RugPullConfig struct {
	MinLiquidityLockUSD float64  `toml:"min_liquidity_lock_usd"`
	MaxTopHolderPct     float64  `toml:"max_top_holder_pct"`
	MinTokenAgeDays     int      `toml:"min_token_age_days"`
	MinHolderCount      int      `toml:"min_holder_count"`
	Blacklist           []string `toml:"blacklist"`
	CacheTTL            duration `toml:"cache_ttl"`
}

// ExecutorConfig holds dispatch and unwind parameters.
type ExecutorConfig struct {
	LegTimeout    duration `toml:"leg_timeout"`
	UnwindTimeout duration `toml:"unwind_timeout"`
}

// CycleConfig holds the compounding-cycle parameters.
type CycleConfig struct {
	LengthDays      int     `toml:"length_days"`
	DailyTargetRate float64 `toml:"daily_target_rate"`
}

// VenueConfig holds per-venue gating consumed as read-only by the core.
type VenueConfig struct {
	Enabled      bool    `toml:"enabled"`
	Kind         string  `toml:"kind"` // "cex" or "dex"
	TakerFeeBps  float64 `toml:"taker_fee_bps"`
	RateLimitPerSec int  `toml:"rate_limit_per_sec"`
	Chain        string  `toml:"chain"`
	// FeedURL is the WebSocket quote stream endpoint for live mode.
	FeedURL string `toml:"feed_url"`
	// Instruments lists the markets tracked on this venue.
	Instruments []string `toml:"instruments"`
}

// PostgresConfig holds the warm-archive connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the event-bus connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds cold-archive object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the operator control surface parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKeyPath points at an encrypted key file; empty disables auth.
	APIKeyPath     string `toml:"api_key_path"`
	APIKeyPassword string `toml:"api_key_password"`
}

// NotifyConfig holds alert channel credentials for operator-facing alerts
// (breaker trips, unwind failures).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			InitialCapitalUSD: 100_000,
			PassInterval:      duration{500 * time.Millisecond},
		},
		Snapshot: SnapshotConfig{
			StaleAfter: duration{5 * time.Second},
		},
		Strategy: StrategyConfig{
			MinWinRate:    0.80,
			MinConfidence: 0.70,
			PriorWinRate:  0.75,
			MinSampleSize: 20,
			DefaultTTL:    duration{30 * time.Second},
			TargetSizeUSD: 5_000,
			Enabled: []string{
				"cex_cex", "dex_dex", "cex_dex", "triangular",
				"funding_rate", "statistical", "cross_chain",
			},
			CexCex:     SpreadStrategyConfig{MinEdgeBps: 20},
			DexDex:     SpreadStrategyConfig{MinEdgeBps: 35},
			CexDex:     SpreadStrategyConfig{MinEdgeBps: 30},
			Triangular: TriangularConfig{MinEdgeBps: 15},
			Funding:    FundingConfig{MinRateBps: 8, Pairs: map[string]string{}},
			Statistical: StatisticalConfig{
				MinEdgeBps:  25,
				EntryZ:      2.0,
				Ratio:       map[string]float64{},
				RatioStddev: map[string]float64{},
			},
			CrossChain: CrossChainConfig{
				MinEdgeBps:   50,
				BridgeFeeUSD: map[string]float64{},
			},
		},
		Risk: RiskConfig{
			CapitalAtRiskFraction:   0.40,
			MaxPositionFraction:     0.12,
			MaxPositions:            5,
			DailyLossLimitUSD:       5_000,
			MaxConsecutiveLosses:    3,
			VolatilitySpikeMultiple: 3.0,
			CorrelationThreshold:    0.70,
			WarningFraction:         0.80,
		},
		Sizer: SizerConfig{
			KellyFraction: 0.5,
		},
		RugPull: RugPullConfig{
			MinLiquidityLockUSD: 100_000,
			MaxTopHolderPct:     0.20,
			MinTokenAgeDays:     7,
			MinHolderCount:      100,
			CacheTTL:            duration{10 * time.Minute},
		},
		Executor: ExecutorConfig{
			LegTimeout:    duration{5 * time.Second},
			UnwindTimeout: duration{15 * time.Second},
		},
		Cycle: CycleConfig{
			LengthDays:      7,
			DailyTargetRate: 0.015,
		},
		Venues: map[string]VenueConfig{},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbiter",
			User:          "arbiter",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbiter-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"breaker_transition", "unwind_failed", "cycle_rollover"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"paper":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Engine.InitialCapitalUSD <= 0 {
		errs = append(errs, "engine: initial_capital_usd must be > 0")
	}
	if c.Engine.PassInterval.Duration <= 0 {
		errs = append(errs, "engine: pass_interval must be > 0")
	}
	if c.Snapshot.StaleAfter.Duration <= 0 {
		errs = append(errs, "snapshot: stale_after must be > 0")
	}

	if c.Strategy.MinWinRate <= 0 || c.Strategy.MinWinRate >= 1 {
		errs = append(errs, "strategy: min_win_rate must be in (0, 1)")
	}
	if c.Strategy.MinConfidence <= 0 || c.Strategy.MinConfidence > 1 {
		errs = append(errs, "strategy: min_confidence must be in (0, 1]")
	}
	if c.Strategy.TargetSizeUSD <= 0 {
		errs = append(errs, "strategy: target_size_usd must be > 0")
	}
	for _, cyc := range c.Strategy.Triangular.Cycles {
		if len(cyc) != 3 {
			errs = append(errs, fmt.Sprintf("strategy: triangular cycle must have 3 instruments, got %d", len(cyc)))
		}
	}

	if c.Risk.CapitalAtRiskFraction <= 0 || c.Risk.CapitalAtRiskFraction > 1 {
		errs = append(errs, "risk: capital_at_risk_fraction must be in (0, 1]")
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		errs = append(errs, "risk: max_position_fraction must be in (0, 1]")
	}
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}
	if c.Risk.DailyLossLimitUSD <= 0 {
		errs = append(errs, "risk: daily_loss_limit_usd must be > 0")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		errs = append(errs, "risk: max_consecutive_losses must be >= 1")
	}

	if c.Sizer.KellyFraction <= 0 || c.Sizer.KellyFraction >= 1 {
		errs = append(errs, "sizer: kelly_fraction must be in (0, 1), never full kelly")
	}

	if c.Executor.LegTimeout.Duration <= 0 {
		errs = append(errs, "executor: leg_timeout must be > 0")
	}
	if c.Cycle.LengthDays < 1 {
		errs = append(errs, "cycle: length_days must be >= 1")
	}
	if c.Cycle.DailyTargetRate < 0 {
		errs = append(errs, "cycle: daily_target_rate must be >= 0")
	}

	for name, v := range c.Venues {
		if v.Kind != "cex" && v.Kind != "dex" {
			errs = append(errs, fmt.Sprintf("venues.%s: kind must be \"cex\" or \"dex\", got %q", name, v.Kind))
		}
		if v.Kind == "dex" && v.Chain == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: chain is required for dex venues", name))
		}
	}

	needsArchive := c.Mode == "live" || c.Mode == "paper"
	if needsArchive && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.APIKeyPath != "" && c.Server.APIKeyPassword == "" {
			errs = append(errs, "server: api_key_password is required when api_key_path is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
