package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/logger"
	"github.com/yitech/candleclock/model/candle"
)

const (
	SourceEndpoint = "endpoint"
	SourceBinance  = "binance"
)

// Config holds all application configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Countdown CountdownConfig `yaml:"countdown"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       logger.Config   `yaml:"log"`
}

type SourceConfig struct {
	Type          string        `yaml:"type"`
	EndpointURL   string        `yaml:"endpoint_url"`
	Symbol        string        `yaml:"symbol"`
	Interval      string        `yaml:"interval"`
	Limit         int           `yaml:"limit"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

type CountdownConfig struct {
	PeriodLengthSeconds int    `yaml:"period_length_seconds"`
	TickIntervalMs      int    `yaml:"tick_interval_ms"`
	GranularitySeconds  int    `yaml:"granularity_seconds"`
	Mode                string `yaml:"mode"`
	// Refresh re-fetches the series shortly after every period boundary.
	Refresh      *bool         `yaml:"refresh"`
	RefreshDelay time.Duration `yaml:"refresh_delay"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

type DatabaseConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Period returns the configured period length.
func (c CountdownConfig) Period() time.Duration {
	return time.Duration(c.PeriodLengthSeconds) * time.Second
}

// Tick returns the configured tick interval.
func (c CountdownConfig) Tick() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// RefreshEnabled reports whether boundary refresh is on. It defaults to true.
func (c CountdownConfig) RefreshEnabled() bool {
	return c.Refresh == nil || *c.Refresh
}

// Load reads an optional .env file, then the YAML file at path, then applies
// environment variable overrides and defaults. A missing YAML file is not an
// error; everything can come from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SOURCE_TYPE"); v != "" {
		c.Source.Type = v
	}
	if v := os.Getenv("ENDPOINT_URL"); v != "" {
		c.Source.EndpointURL = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Source.Symbol = v
	}
	if v := os.Getenv("INTERVAL"); v != "" {
		c.Source.Interval = v
	}
	if v := os.Getenv("COUNTDOWN_MODE"); v != "" {
		c.Countdown.Mode = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PERIOD_LENGTH_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PERIOD_LENGTH_SECONDS: %w", err)
		}
		c.Countdown.PeriodLengthSeconds = n
	}
	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL_MS: %w", err)
		}
		c.Countdown.TickIntervalMs = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = SourceEndpoint
	}
	if c.Source.Symbol == "" {
		c.Source.Symbol = "TRBUSDT"
	}
	if c.Source.Interval == "" {
		c.Source.Interval = "15m"
	}
	if c.Source.Limit == 0 {
		c.Source.Limit = 500
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 10 * time.Second
	}
	if c.Source.RatePerSecond == 0 {
		c.Source.RatePerSecond = 1
	}
	if c.Countdown.PeriodLengthSeconds == 0 {
		c.Countdown.PeriodLengthSeconds = int(countdown.DefaultPeriod / time.Second)
	}
	if c.Countdown.TickIntervalMs == 0 {
		c.Countdown.TickIntervalMs = int(countdown.DefaultTick / time.Millisecond)
	}
	if c.Countdown.GranularitySeconds == 0 {
		c.Countdown.GranularitySeconds = 60
	}
	if c.Countdown.RefreshDelay == 0 {
		c.Countdown.RefreshDelay = 2 * time.Second
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceEndpoint:
		if c.Source.EndpointURL == "" {
			return fmt.Errorf("source.endpoint_url is required for source type %q", SourceEndpoint)
		}
	case SourceBinance:
		if c.Source.Symbol == "" {
			return fmt.Errorf("source.symbol is required for source type %q", SourceBinance)
		}
		secs, err := candle.IntervalSeconds(c.Source.Interval)
		if err != nil {
			return fmt.Errorf("source.interval: %w", err)
		}
		if secs != int64(c.Countdown.PeriodLengthSeconds) {
			return fmt.Errorf("source.interval %s (%ds) does not match countdown.period_length_seconds %d",
				c.Source.Interval, secs, c.Countdown.PeriodLengthSeconds)
		}
	default:
		return fmt.Errorf("source.type %q is not one of %q, %q", c.Source.Type, SourceEndpoint, SourceBinance)
	}
	if c.Countdown.PeriodLengthSeconds <= 0 {
		return fmt.Errorf("countdown.period_length_seconds must be positive")
	}
	if c.Countdown.TickIntervalMs <= 0 {
		return fmt.Errorf("countdown.tick_interval_ms must be positive")
	}
	if c.Countdown.GranularitySeconds <= 0 {
		return fmt.Errorf("countdown.granularity_seconds must be positive")
	}
	if _, err := countdown.ParseMode(c.Countdown.Mode); err != nil {
		return fmt.Errorf("countdown.mode: %w", err)
	}
	return nil
}
