package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chidi150c/tradegate/internal/config"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the environment before starting the gateway",
	Long: `Load the dotenv file (existing variables win) and check that paper mode is
selected, the risk knobs are present and well formed, and the state directory
is writable.`,
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	report := config.Preflight(os.Getenv)
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	if !report.OK() {
		return errors.New("preflight failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "PASS: preflight completed")
	return nil
}
