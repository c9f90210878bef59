package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/config"
	"github.com/chidi150c/tradegate/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "tradegate",
	Short: "Pre-trade safety gateway with daily loss and duplicate-order tracking",
	Long: `Tradegate sits between an automated trader and the brokerage.

Every order is checked before submission:
  - short sells without a position are blocked
  - buying power is checked with a 1% slippage buffer
  - per-order value and daily realized loss limits are enforced
  - position concentration and duplicate submissions are flagged

Realized P&L and recent order fingerprints are persisted per trading day.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	envFile string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with TRADEGATE_* overrides")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile, envFile)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.File != "" {
		return util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	}
	return util.NewLogger(cfg.Log.Level)
}
