package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chidi150c/tradegate/internal/journal"
	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/util"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show realized P&L and recent order fingerprints for a trading day",
	Long: `Read the persisted daily state without starting the gateway.

When a journal database is configured, its P&L total for the same date is
printed next to the state file total so the two can be reconciled.

Examples:
  tradegate state
  tradegate state --date 2024-01-15 -c tradegate.yaml`,
	RunE: runState,
}

var stateDate string

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().StringVar(&stateDate, "date", "", "trading date as YYYY-MM-DD (default today in the configured timezone)")
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc, now := cfg.Location(), time.Now()
	date := stateDate
	if date == "" {
		date = util.DateKey(loc, now)
	}
	day, err := time.ParseInLocation(util.DateLayout, date, loc)
	if err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
	}

	out := cmd.OutOrStdout()
	st, err := risk.LoadDay(cfg.State.Dir, date)
	switch {
	case errors.Is(err, util.ErrNoFile):
		fmt.Fprintf(out, "No state recorded for %s in %s\n", date, cfg.State.Dir)
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(out, "Date:          %s\n", st.Date)
	if util.SameTradingDay(loc, day, now) {
		fmt.Fprintf(out, "Rolls over at: %s\n", util.NextOpen(loc, now).Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Realized P&L:  %s\n", risk.Money(st.RealizedPnL))
	if lim := cfg.RiskLimits().DailyLossLimit; lim.Enabled() {
		fmt.Fprintf(out, "Loss limit:    %s\n", risk.Money(lim.Value()))
	}
	fmt.Fprintf(out, "Recent orders: %d\n", len(st.RecentOrders))
	for _, o := range st.RecentOrders {
		fmt.Fprintf(out, "  %s  %s\n", o.Timestamp.In(loc).Format(time.RFC3339), o.Fingerprint.Short())
	}

	if cfg.Journal.DBPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Journal.DBPath); err != nil {
		return nil
	}
	jr, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jr.Close()

	total, err := jr.DailyPnL(cmd.Context(), date)
	if err != nil {
		return fmt.Errorf("journal pnl: %w", err)
	}
	fmt.Fprintf(out, "Journal P&L:   %s", risk.Money(total))
	if !total.Equal(st.RealizedPnL) {
		fmt.Fprint(out, "  (MISMATCH)")
	}
	fmt.Fprintln(out)
	return nil
}
