package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chidi150c/tradegate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage gateway configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradegate config init -o tradegate.yaml
  tradegate config validate -f tradegate.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "tradegate.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "All risk limits are disabled (0); set them before trading.")
	fmt.Fprintf(out, "  tradegate serve -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	lim := cfg.RiskLimits()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: %s (%s)\n", cfg.Account.ID, cfg.Account.Currency)
	fmt.Fprintf(out, "  Max order value: %s\n", lim.MaxOrderValue)
	fmt.Fprintf(out, "  Daily loss limit: %s\n", lim.DailyLossLimit)
	fmt.Fprintf(out, "  Max position pct: %s\n", lim.MaxPositionPct)
	fmt.Fprintf(out, "  Duplicate window: %s\n", cfg.DuplicateWindow())
	fmt.Fprintf(out, "  State dir: %s\n", cfg.State.Dir)
	return nil
}
