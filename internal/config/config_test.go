package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Len(t, cfg.Assets, 2)
	require.True(t, cfg.Devnet.Enabled)

	p, err := cfg.Engine.Params()
	require.NoError(t, err)
	require.EqualValues(t, 50, p.LiquidationThreshold)
	require.EqualValues(t, 10, p.LiquidationBonus)
	require.EqualValues(t, 100, p.LiquidationPrecision)
	require.Equal(t, "1000000000000000000", p.MinHealthFactor.Dec())
	require.Equal(t, 3*time.Hour, p.OracleTimeout)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  rate_limit:
    requests_per_second: 5
    burst: 10
engine:
  address: "0x00000000000000000000000000000000000000e0"
  liquidation_threshold: 60
  liquidation_bonus: 5
  min_health_factor: "1.2"
  oracle_timeout: 1h
assets:
  - id: weth
    token: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    feed:
      kind: redis
      decimals: 8
store:
  redis_url: redis://localhost:6379/0
  cache_ttl: 10s
log:
  level: DEBUG
devnet:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 5.0, cfg.Server.RateLimit.RequestsPerSecond)
	require.Len(t, cfg.Assets, 1, "file assets replace the defaults")
	require.Equal(t, "WETH", cfg.Assets[0].ID)
	require.Equal(t, FeedRedis, cfg.Assets[0].Feed.Kind)
	require.Equal(t, "oracle:WETH", cfg.Assets[0].Feed.Key)
	require.Equal(t, 10*time.Second, cfg.Store.CacheTTL)
	require.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	require.False(t, cfg.Devnet.Enabled)

	p, err := cfg.Engine.Params()
	require.NoError(t, err)
	require.EqualValues(t, 60, p.LiquidationThreshold)
	require.Equal(t, "1200000000000000000", p.MinHealthFactor.Dec())
	require.Equal(t, time.Hour, p.OracleTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://dsc@localhost/dsc")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Server.Port)
	require.Equal(t, "postgres://dsc@localhost/dsc", cfg.Store.DatabaseURL)
	require.Equal(t, "redis://localhost:6379/1", cfg.Store.RedisURL)
	require.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  liquidation_threshold: 0\n"))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"negative rate", func(c *Config) { c.Server.RateLimit.RequestsPerSecond = -1 }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"bad engine address", func(c *Config) { c.Engine.Address = "engine" }},
		{"zero engine address", func(c *Config) { c.Engine.Address = "0x0000000000000000000000000000000000000000" }},
		{"threshold above 100", func(c *Config) { c.Engine.LiquidationThreshold = 101 }},
		{"zero bonus", func(c *Config) { c.Engine.LiquidationBonus = 0 }},
		{"bonus above 100", func(c *Config) { c.Engine.LiquidationBonus = 101 }},
		{"bad min health factor", func(c *Config) { c.Engine.MinHealthFactor = "one" }},
		{"zero min health factor", func(c *Config) { c.Engine.MinHealthFactor = "0" }},
		{"no assets", func(c *Config) { c.Assets = nil }},
		{"bad asset id", func(c *Config) { c.Assets[0].ID = "w-eth" }},
		{"duplicate asset", func(c *Config) { c.Assets[1].ID = c.Assets[0].ID }},
		{"bad token address", func(c *Config) { c.Assets[0].Token = "0x12" }},
		{"feed decimals", func(c *Config) { c.Assets[0].Feed.Decimals = 19 }},
		{"zero static price", func(c *Config) { c.Assets[0].Feed.Price = "0" }},
		{"unknown feed kind", func(c *Config) { c.Assets[0].Feed.Kind = "chainlink" }},
		{"redis feed without redis", func(c *Config) { c.Assets[0].Feed.Kind = FeedRedis }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad minter", func(c *Config) { c.Devnet.Minter = "" }},
		{"minter is engine", func(c *Config) { c.Devnet.Minter = c.Engine.Address }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestSlogLevel_DefaultsToInfo(t *testing.T) {
	require.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
	require.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
}
