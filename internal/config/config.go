// Package config loads the service configuration from a YAML file with
// environment overrides for deployment secrets and ports.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/atmx/dsc-engine/internal/asset"
	"github.com/atmx/dsc-engine/internal/engine"
	"github.com/atmx/dsc-engine/internal/fixedpoint"
	"github.com/atmx/dsc-engine/internal/oracle"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Feed kinds.
const (
	FeedStatic = "static"
	FeedRedis  = "redis"
)

type Config struct {
	Server ServerConfig  `yaml:"server"`
	Engine EngineConfig  `yaml:"engine"`
	Assets []AssetConfig `yaml:"assets"`
	Store  StoreConfig   `yaml:"store"`
	Log    LogConfig     `yaml:"log"`
	Devnet DevnetConfig  `yaml:"devnet"`
}

type ServerConfig struct {
	Port            string          `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds mutating requests. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type EngineConfig struct {
	// Address is the account the engine holds collateral under and the
	// owner of the debt token.
	Address              string        `yaml:"address"`
	LiquidationThreshold uint64        `yaml:"liquidation_threshold"`
	LiquidationBonus     uint64        `yaml:"liquidation_bonus"`
	MinHealthFactor      string        `yaml:"min_health_factor"`
	OracleTimeout        time.Duration `yaml:"oracle_timeout"`
}

type AssetConfig struct {
	ID    string     `yaml:"id"`
	Token string     `yaml:"token"` // informational token address
	Feed  FeedConfig `yaml:"feed"`
}

type FeedConfig struct {
	Kind     string `yaml:"kind"`
	Decimals uint8  `yaml:"decimals"`
	Price    string `yaml:"price"` // initial USD price for static feeds
	Key      string `yaml:"key"`   // Redis hash key; defaults to oracle:<ID>
}

type StoreConfig struct {
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // rotated file output; stdout when empty
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DevnetConfig enables the faucet, approve and price endpoints. Minter owns
// the in-process collateral tokens.
type DevnetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Minter  string `yaml:"minter"`
}

// Default returns a single-node devnet configuration with WETH and WBTC on
// static 8-decimal feeds.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimit:       RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
		},
		Engine: EngineConfig{
			Address:              "0x000000000000000000000000000000000000d5c0",
			LiquidationThreshold: 50,
			LiquidationBonus:     10,
			MinHealthFactor:      "1",
			OracleTimeout:        oracle.DefaultMaxAge,
		},
		Assets: []AssetConfig{
			{ID: "WETH", Feed: FeedConfig{Kind: FeedStatic, Decimals: 8, Price: "2000"}},
			{ID: "WBTC", Feed: FeedConfig{Kind: FeedStatic, Decimals: 8, Price: "1000"}},
		},
		Store: StoreConfig{CacheTTL: 30 * time.Second},
		Log:   LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28, Compress: true},
		Devnet: DevnetConfig{
			Enabled: true,
			Minter:  "0x000000000000000000000000000000000000f0ce",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path yields the defaults.
// A file that lists assets replaces the default asset list.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment when set.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.RedisURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	for i := range c.Assets {
		a := &c.Assets[i]
		a.ID = strings.ToUpper(strings.TrimSpace(a.ID))
		a.Feed.Kind = strings.ToLower(strings.TrimSpace(a.Feed.Kind))
		if a.Feed.Kind == "" {
			a.Feed.Kind = FeedStatic
		}
		if a.Feed.Kind == FeedRedis && a.Feed.Key == "" {
			a.Feed.Key = oracle.FeedKey(a.ID)
		}
	}
}

// Validate checks the configuration for values the service cannot start
// with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is required", ErrInvalid)
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.request_timeout and server.shutdown_timeout must be positive", ErrInvalid)
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: server.rate_limit.requests_per_second must not be negative", ErrInvalid)
	}

	if err := validateAddress("engine.address", c.Engine.Address); err != nil {
		return err
	}
	if _, err := c.Engine.Params(); err != nil {
		return fmt.Errorf("%w: engine: %w", ErrInvalid, err)
	}

	if len(c.Assets) == 0 {
		return fmt.Errorf("%w: at least one asset is required", ErrInvalid)
	}
	seen := make(map[asset.ID]bool, len(c.Assets))
	for i, a := range c.Assets {
		field := fmt.Sprintf("assets[%d]", i)
		id, err := asset.ParseID(a.ID)
		if err != nil {
			return fmt.Errorf("%w: %s.id: %w", ErrInvalid, field, err)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s: duplicate asset %s", ErrInvalid, field, id)
		}
		seen[id] = true
		if a.Token != "" {
			if err := validateAddress(field+".token", a.Token); err != nil {
				return err
			}
		}
		if err := c.validateFeed(field+".feed", a.Feed); err != nil {
			return err
		}
	}

	if _, ok := logLevels[c.Log.Level]; !ok {
		return fmt.Errorf("%w: log.level %q must be one of debug, info, warn, error", ErrInvalid, c.Log.Level)
	}

	if c.Devnet.Enabled {
		if err := validateAddress("devnet.minter", c.Devnet.Minter); err != nil {
			return err
		}
		if strings.EqualFold(c.Devnet.Minter, c.Engine.Address) {
			return fmt.Errorf("%w: devnet.minter must differ from engine.address", ErrInvalid)
		}
	}
	return nil
}

func (c *Config) validateFeed(field string, f FeedConfig) error {
	if f.Decimals > fixedpoint.Decimals {
		return fmt.Errorf("%w: %s.decimals must be at most %d", ErrInvalid, field, fixedpoint.Decimals)
	}
	switch f.Kind {
	case FeedStatic:
		p, err := fixedpoint.Parse(f.Price)
		if err != nil || p.IsZero() {
			return fmt.Errorf("%w: %s.price must be a positive decimal", ErrInvalid, field)
		}
	case FeedRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: %s: redis feeds need store.redis_url", ErrInvalid, field)
		}
	default:
		return fmt.Errorf("%w: %s.kind %q must be static or redis", ErrInvalid, field, f.Kind)
	}
	return nil
}

// Params converts the engine section into engine parameters.
func (e EngineConfig) Params() (engine.Params, error) {
	p := engine.DefaultParams()
	p.LiquidationThreshold = e.LiquidationThreshold
	p.LiquidationBonus = e.LiquidationBonus
	if e.LiquidationBonus == 0 {
		return engine.Params{}, errors.New("liquidation_bonus must be positive")
	}
	if e.OracleTimeout > 0 {
		p.OracleTimeout = e.OracleTimeout
	}
	if e.MinHealthFactor != "" {
		hf, err := fixedpoint.Parse(e.MinHealthFactor)
		if err != nil {
			return engine.Params{}, fmt.Errorf("min_health_factor: %w", err)
		}
		p.MinHealthFactor = hf
	}
	if _, err := p.Validate(); err != nil {
		return engine.Params{}, err
	}
	return p, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	if lvl, ok := logLevels[strings.ToLower(l.Level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func validateAddress(field, s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%w: %s %q is not a hex address", ErrInvalid, field, s)
	}
	if common.HexToAddress(s) == (common.Address{}) {
		return fmt.Errorf("%w: %s must not be the zero address", ErrInvalid, field)
	}
	return nil
}
