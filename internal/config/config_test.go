package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Engine.InitialCapitalUSD = -1
	cfg.Sizer.KellyFraction = 1.5
	cfg.Risk.MaxConsecutiveLosses = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "initial_capital_usd")
	assert.Contains(t, err.Error(), "kelly_fraction")
	assert.Contains(t, err.Error(), "max_consecutive_losses")
}

func TestValidateTriangularCycleLength(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy.Triangular.Cycles = [][]string{{"BTC/USDT", "ETH/BTC"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "triangular cycle")
}

func TestValidateDexVenueRequiresChain(t *testing.T) {
	cfg := Defaults()
	cfg.Venues = map[string]VenueConfig{
		"uniswap": {Enabled: true, Kind: "dex"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain is required")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arbiter.toml")
	data := `
mode = "monitor"

[engine]
initial_capital_usd = 250000.0
pass_interval = "250ms"

[risk]
max_positions = 8

[cycle]
length_days = 14
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 250000.0, cfg.Engine.InitialCapitalUSD)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.PassInterval.Duration)
	assert.Equal(t, 8, cfg.Risk.MaxPositions)
	assert.Equal(t, 14, cfg.Cycle.LengthDays)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.5, cfg.Sizer.KellyFraction)
	assert.Equal(t, 3, cfg.Risk.MaxConsecutiveLosses)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBITER_MODE", "live")
	t.Setenv("ARBITER_RISK_DAILY_LOSS_LIMIT_USD", "2500")
	t.Setenv("ARBITER_EXECUTOR_LEG_TIMEOUT", "2s")
	t.Setenv("ARBITER_STRATEGY_ENABLED", "cex_cex, triangular")
	t.Setenv("ARBITER_POSTGRES_RUN_MIGRATIONS", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, 2500.0, cfg.Risk.DailyLossLimitUSD)
	assert.Equal(t, 2*time.Second, cfg.Executor.LegTimeout.Duration)
	assert.Equal(t, []string{"cex_cex", "triangular"}, cfg.Strategy.Enabled)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ARBITER_RISK_MAX_POSITIONS", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, Defaults().Risk.MaxPositions, cfg.Risk.MaxPositions)
}
