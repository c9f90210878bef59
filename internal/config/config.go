// Package config loads the gateway configuration: a YAML (or JSON) file, then a
// .env file, then TRADEGATE_* environment variables, in increasing priority.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/util"
)

type Config struct {
	Mode    string        `json:"mode" yaml:"mode"`
	Account AccountConfig `json:"account" yaml:"account"`
	Limits  LimitsConfig  `json:"limits" yaml:"limits"`
	State   StateConfig   `json:"state" yaml:"state"`
	Guards  GuardsConfig  `json:"guards" yaml:"guards"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Paper   PaperConfig   `json:"paper" yaml:"paper"`
}

type AccountConfig struct {
	ID       string `json:"id" yaml:"id"`
	Currency string `json:"currency" yaml:"currency"`
}

// LimitsConfig holds the risk thresholds. 0 disables a limit.
type LimitsConfig struct {
	MaxOrderValue  float64 `json:"max_order_value" yaml:"max_order_value"`
	DailyLossLimit float64 `json:"daily_loss_limit" yaml:"daily_loss_limit"`
	MaxPositionPct float64 `json:"max_position_pct" yaml:"max_position_pct"` // fraction of net liquidation, 0.25 = 25%
}

type StateConfig struct {
	Dir             string `json:"dir" yaml:"dir"`
	DuplicateWindow string `json:"duplicate_window" yaml:"duplicate_window"` // e.g. "60s"
	Timezone        string `json:"timezone" yaml:"timezone"`                 // IANA name; empty or "Local" for process local time
}

type GuardsConfig struct {
	OrdersPerMinute       int    `json:"orders_per_minute" yaml:"orders_per_minute"`
	BreakerThreshold      int    `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown       string `json:"breaker_cooldown" yaml:"breaker_cooldown"`
	BreakerHalfOpenTrials int    `json:"breaker_half_open_trials" yaml:"breaker_half_open_trials"`
}

type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"` // empty disables the journal
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

type PaperPosition struct {
	Quantity int64   `json:"quantity" yaml:"quantity"`
	AvgCost  float64 `json:"avg_cost" yaml:"avg_cost"`
}

// PaperConfig seeds the in-memory exchange.
type PaperConfig struct {
	Cash      float64                  `json:"cash" yaml:"cash"`
	Prices    map[string]float64       `json:"prices,omitempty" yaml:"prices,omitempty"`
	Positions map[string]PaperPosition `json:"positions,omitempty" yaml:"positions,omitempty"`
}

// Default returns a paper-mode configuration with every risk limit disabled.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".tradegate")
	return &Config{
		Mode:    "paper",
		Account: AccountConfig{ID: "PAPER-001", Currency: "USD"},
		State: StateConfig{
			Dir:             filepath.Join(base, "state"),
			DuplicateWindow: "60s",
			Timezone:        "Local",
		},
		Guards: GuardsConfig{
			OrdersPerMinute:       30,
			BreakerThreshold:      3,
			BreakerCooldown:       "30s",
			BreakerHalfOpenTrials: 1,
		},
		Journal: JournalConfig{DBPath: filepath.Join(base, "journal.db")},
		Server:  ServerConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Log:     LogConfig{Level: "info"},
		Paper:   PaperConfig{Cash: 100000},
	}
}

// LoadFromFile loads and validates a configuration file (YAML, or JSON as a fallback).
// Fields the file omits keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load builds the effective configuration: the file at path (defaults when path is
// empty), the .env file at envPath, then the environment.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Mode != "paper" {
		return fmt.Errorf("mode must be 'paper', got %q", c.Mode)
	}
	if err := c.checkFinite(); err != nil {
		return err
	}
	if c.Limits.MaxOrderValue < 0 {
		return fmt.Errorf("limits.max_order_value must be non-negative, got %v", c.Limits.MaxOrderValue)
	}
	if c.Limits.DailyLossLimit < 0 {
		return fmt.Errorf("limits.daily_loss_limit must be non-negative, got %v", c.Limits.DailyLossLimit)
	}
	if c.Limits.MaxPositionPct < 0 || c.Limits.MaxPositionPct > 1 {
		return fmt.Errorf("limits.max_position_pct must be between 0 and 1, got %v", c.Limits.MaxPositionPct)
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}
	if d, err := parseDuration(c.State.DuplicateWindow); err != nil || d <= 0 {
		return fmt.Errorf("state.duplicate_window must be a positive duration, got %q", c.State.DuplicateWindow)
	}
	if tz := c.State.Timezone; tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("state.timezone: %w", err)
		}
	}
	if c.Guards.OrdersPerMinute < 0 {
		return fmt.Errorf("guards.orders_per_minute must be non-negative")
	}
	if c.Guards.BreakerThreshold < 1 {
		return fmt.Errorf("guards.breaker_threshold must be at least 1")
	}
	if c.Guards.BreakerHalfOpenTrials < 1 {
		return fmt.Errorf("guards.breaker_half_open_trials must be at least 1")
	}
	if _, err := parseDuration(c.Guards.BreakerCooldown); err != nil {
		return fmt.Errorf("guards.breaker_cooldown: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Paper.Cash < 0 {
		return fmt.Errorf("paper.cash must be non-negative")
	}
	for sym, px := range c.Paper.Prices {
		if px <= 0 {
			return fmt.Errorf("paper.prices.%s must be positive", sym)
		}
	}
	for sym, p := range c.Paper.Positions {
		if p.Quantity < 0 || p.AvgCost < 0 {
			return fmt.Errorf("paper.positions.%s must be non-negative", sym)
		}
	}
	return nil
}

type numField struct {
	name string
	v    float64
}

// checkFinite rejects NaN and infinite amounts, which YAML (.nan, .inf) and
// strconv both accept and which decimal cannot represent.
func (c *Config) checkFinite() error {
	fields := []numField{
		{"limits.max_order_value", c.Limits.MaxOrderValue},
		{"limits.daily_loss_limit", c.Limits.DailyLossLimit},
		{"limits.max_position_pct", c.Limits.MaxPositionPct},
		{"paper.cash", c.Paper.Cash},
	}
	for sym, px := range c.Paper.Prices {
		fields = append(fields, numField{"paper.prices." + sym, px})
	}
	for sym, p := range c.Paper.Positions {
		fields = append(fields, numField{"paper.positions." + sym + ".avg_cost", p.AvgCost})
	}
	for _, f := range fields {
		if !isFinite(f.v) {
			return fmt.Errorf("%s must be a finite number, got %v", f.name, f.v)
		}
	}
	return nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RiskLimits converts the 0-means-disabled file values into tagged limits.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxOrderValue:  risk.FromSentinel(c.Limits.MaxOrderValue),
		DailyLossLimit: risk.FromSentinel(c.Limits.DailyLossLimit),
		MaxPositionPct: risk.FromSentinel(c.Limits.MaxPositionPct),
	}
}

// DuplicateWindow falls back to the engine default when unset or invalid.
func (c *Config) DuplicateWindow() time.Duration {
	d, err := parseDuration(c.State.DuplicateWindow)
	if err != nil || d <= 0 {
		return risk.DefaultDuplicateWindow
	}
	return d
}

func (c *Config) BreakerCooldown() time.Duration {
	d, _ := parseDuration(c.Guards.BreakerCooldown)
	return d
}

func (c *Config) Location() *time.Location { return util.LoadLocation(c.State.Timezone) }

// PaperCash converts the configured starting cash to an exact decimal.
func (c *Config) PaperCash() decimal.Decimal { return decimal.NewFromFloat(c.Paper.Cash) }

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
