package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvMode            = "TRADEGATE_MODE"
	EnvMaxOrderValue   = "TRADEGATE_MAX_ORDER_VALUE"
	EnvDailyLossLimit  = "TRADEGATE_DAILY_LOSS_LIMIT"
	EnvMaxPositionPct  = "TRADEGATE_MAX_POSITION_PCT"
	EnvStateDir        = "TRADEGATE_STATE_DIR"
	EnvTimezone        = "TRADEGATE_TIMEZONE"
	EnvDuplicateWindow = "TRADEGATE_DUPLICATE_WINDOW"
	EnvOrdersPerMinute = "TRADEGATE_ORDERS_PER_MINUTE"
	EnvJournalDB       = "TRADEGATE_JOURNAL_DB"
	EnvAddr            = "TRADEGATE_ADDR"
	EnvAllowedOrigins  = "TRADEGATE_ALLOWED_ORIGINS"
	EnvLogLevel        = "TRADEGATE_LOG_LEVEL"
	EnvLogFile         = "TRADEGATE_LOG_FILE"
	EnvPaperCash       = "TRADEGATE_PAPER_CASH"
)

// ApplyEnv loads envPath (default ".env", missing is fine) without overriding
// variables already set, then applies TRADEGATE_* overrides.
// Priority: ENV > .env file > config file > defaults.
func (c *Config) ApplyEnv(envPath string) error {
	if envPath == "" {
		envPath = ".env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	return c.applyLookup(os.LookupEnv)
}

func (c *Config) applyLookup(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || !isFinite(f) {
			return fmt.Errorf("%s must be a finite number, got %q", key, v)
		}
		*dst = f
		return nil
	}

	str(EnvMode, &c.Mode)
	str(EnvStateDir, &c.State.Dir)
	str(EnvTimezone, &c.State.Timezone)
	str(EnvDuplicateWindow, &c.State.DuplicateWindow)
	str(EnvJournalDB, &c.Journal.DBPath)
	str(EnvAddr, &c.Server.Addr)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFile, &c.Log.File)

	for key, dst := range map[string]*float64{
		EnvMaxOrderValue:  &c.Limits.MaxOrderValue,
		EnvDailyLossLimit: &c.Limits.DailyLossLimit,
		EnvMaxPositionPct: &c.Limits.MaxPositionPct,
		EnvPaperCash:      &c.Paper.Cash,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvOrdersPerMinute); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", EnvOrdersPerMinute, v)
		}
		c.Guards.OrdersPerMinute = n
	}
	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	return nil
}
