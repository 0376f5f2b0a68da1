package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBITER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBITER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.InitialCapitalUSD, "ARBITER_ENGINE_INITIAL_CAPITAL_USD")
	setDuration(&cfg.Engine.PassInterval, "ARBITER_ENGINE_PASS_INTERVAL")

	// ── Snapshot ──
	setDuration(&cfg.Snapshot.StaleAfter, "ARBITER_SNAPSHOT_STALE_AFTER")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MinWinRate, "ARBITER_STRATEGY_MIN_WIN_RATE")
	setFloat64(&cfg.Strategy.MinConfidence, "ARBITER_STRATEGY_MIN_CONFIDENCE")
	setFloat64(&cfg.Strategy.PriorWinRate, "ARBITER_STRATEGY_PRIOR_WIN_RATE")
	setInt(&cfg.Strategy.MinSampleSize, "ARBITER_STRATEGY_MIN_SAMPLE_SIZE")
	setDuration(&cfg.Strategy.DefaultTTL, "ARBITER_STRATEGY_DEFAULT_TTL")
	setFloat64(&cfg.Strategy.TargetSizeUSD, "ARBITER_STRATEGY_TARGET_SIZE_USD")
	setStringSlice(&cfg.Strategy.Enabled, "ARBITER_STRATEGY_ENABLED")
	setFloat64(&cfg.Strategy.CexCex.MinEdgeBps, "ARBITER_STRATEGY_CEX_CEX_MIN_EDGE_BPS")
	setFloat64(&cfg.Strategy.DexDex.MinEdgeBps, "ARBITER_STRATEGY_DEX_DEX_MIN_EDGE_BPS")
	setFloat64(&cfg.Strategy.CexDex.MinEdgeBps, "ARBITER_STRATEGY_CEX_DEX_MIN_EDGE_BPS")
	setFloat64(&cfg.Strategy.Triangular.MinEdgeBps, "ARBITER_STRATEGY_TRIANGULAR_MIN_EDGE_BPS")
	setFloat64(&cfg.Strategy.Funding.MinRateBps, "ARBITER_STRATEGY_FUNDING_RATE_MIN_RATE_BPS")
	setFloat64(&cfg.Strategy.Statistical.MinEdgeBps, "ARBITER_STRATEGY_STATISTICAL_MIN_EDGE_BPS")
	setFloat64(&cfg.Strategy.Statistical.EntryZ, "ARBITER_STRATEGY_STATISTICAL_ENTRY_Z")
	setFloat64(&cfg.Strategy.CrossChain.MinEdgeBps, "ARBITER_STRATEGY_CROSS_CHAIN_MIN_EDGE_BPS")

	// ── Risk ──
	setFloat64(&cfg.Risk.CapitalAtRiskFraction, "ARBITER_RISK_CAPITAL_AT_RISK_FRACTION")
	setFloat64(&cfg.Risk.MaxPositionFraction, "ARBITER_RISK_MAX_POSITION_FRACTION")
	setInt(&cfg.Risk.MaxPositions, "ARBITER_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.DailyLossLimitUSD, "ARBITER_RISK_DAILY_LOSS_LIMIT_USD")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "ARBITER_RISK_MAX_CONSECUTIVE_LOSSES")
	setFloat64(&cfg.Risk.VolatilitySpikeMultiple, "ARBITER_RISK_VOLATILITY_SPIKE_MULTIPLE")
	setFloat64(&cfg.Risk.CorrelationThreshold, "ARBITER_RISK_CORRELATION_THRESHOLD")
	setFloat64(&cfg.Risk.WarningFraction, "ARBITER_RISK_WARNING_FRACTION")

	// ── Sizer ──
	setFloat64(&cfg.Sizer.KellyFraction, "ARBITER_SIZER_KELLY_FRACTION")

	// ── RugPull ──
	setFloat64(&cfg.RugPull.MinLiquidityLockUSD, "ARBITER_RUGPULL_MIN_LIQUIDITY_LOCK_USD")
	setFloat64(&cfg.RugPull.MaxTopHolderPct, "ARBITER_RUGPULL_MAX_TOP_HOLDER_PCT")
	setInt(&cfg.RugPull.MinTokenAgeDays, "ARBITER_RUGPULL_MIN_TOKEN_AGE_DAYS")
	setInt(&cfg.RugPull.MinHolderCount, "ARBITER_RUGPULL_MIN_HOLDER_COUNT")
	setStringSlice(&cfg.RugPull.Blacklist, "ARBITER_RUGPULL_BLACKLIST")
	setDuration(&cfg.RugPull.CacheTTL, "ARBITER_RUGPULL_CACHE_TTL")

	// ── Executor ──
	setDuration(&cfg.Executor.LegTimeout, "ARBITER_EXECUTOR_LEG_TIMEOUT")
	setDuration(&cfg.Executor.UnwindTimeout, "ARBITER_EXECUTOR_UNWIND_TIMEOUT")

	// ── Cycle ──
	setInt(&cfg.Cycle.LengthDays, "ARBITER_CYCLE_LENGTH_DAYS")
	setFloat64(&cfg.Cycle.DailyTargetRate, "ARBITER_CYCLE_DAILY_TARGET_RATE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBITER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBITER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBITER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBITER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBITER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBITER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBITER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBITER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBITER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBITER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBITER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBITER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBITER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBITER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBITER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBITER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBITER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBITER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBITER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBITER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBITER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBITER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBITER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBITER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBITER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBITER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKeyPath, "ARBITER_SERVER_API_KEY_PATH")
	setStr(&cfg.Server.APIKeyPassword, "ARBITER_SERVER_API_KEY_PASSWORD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBITER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBITER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBITER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBITER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBITER_MODE")
	setStr(&cfg.LogLevel, "ARBITER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
