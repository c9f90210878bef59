package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/api"
	"github.com/chidi150c/tradegate/internal/config"
	"github.com/chidi150c/tradegate/internal/exchange"
	"github.com/chidi150c/tradegate/internal/guards"
	"github.com/chidi150c/tradegate/internal/journal"
	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/tradeplan"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the order gateway API against the paper exchange",
	Long: `Start the HTTP gateway. Orders posted to /api/v1/orders are checked by the
safety engine, submitted to the paper exchange, and recorded in the daily state.

A corrupt daily state file stops startup. Pass --start-fresh to move it aside
(it is renamed, never deleted) and begin the day with empty state.`,
	RunE: runServe,
}

var (
	serveStartFresh   bool
	serveCompactEvery time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStartFresh, "start-fresh", false, "move a corrupt daily state file aside and start empty")
	serveCmd.Flags().DurationVar(&serveCompactEvery, "compact-every", 5*time.Minute, "how often stale duplicate fingerprints are pruned on disk (0 disables)")
}

// gateway bundles the long-lived components serve needs.
type gateway struct {
	safe  *guards.SafeExchange
	hub   *api.Hub
	paper *exchange.Paper
	jr    *journal.SQLite
}

func (g *gateway) Close() error {
	if g.jr != nil {
		return g.jr.Close()
	}
	return nil
}

func buildGateway(cfg *config.Config, log *zap.Logger, startFresh bool) (*gateway, error) {
	day, err := risk.OpenDayManager(cfg.State.Dir,
		risk.WithLocation(cfg.Location()),
		risk.WithWindow(cfg.DuplicateWindow()),
		risk.WithDayLogger(log))
	if err != nil {
		if !errors.Is(err, risk.ErrCorruptState) || !startFresh {
			return nil, fmt.Errorf("open daily state: %w", err)
		}
		log.Warn("daily state corrupt, moving it aside", zap.Error(err))
		if err := day.StartFresh(); err != nil {
			return nil, fmt.Errorf("start fresh: %w", err)
		}
	}

	paper := exchange.NewPaper(cfg.PaperCash())
	for sym, px := range cfg.Paper.Prices {
		paper.SetPrice(sym, decimal.NewFromFloat(px))
	}
	for sym, pos := range cfg.Paper.Positions {
		paper.SetPosition(sym, pos.Quantity, decimal.NewFromFloat(pos.AvgCost))
	}

	plans, err := tradeplan.Open(cfg.State.Dir, nil, log)
	if err != nil {
		return nil, fmt.Errorf("open trade plans: %w", err)
	}

	g := &gateway{hub: api.NewHub(log), paper: paper}
	opts := []guards.Option{
		guards.WithLogger(log),
		guards.WithPlans(plans),
		guards.WithDecisionHook(g.hub.PublishDecision),
	}
	if cfg.Journal.DBPath != "" {
		jr, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		g.jr = jr
		opts = append(opts, guards.WithJournal(jr))
	}

	g.safe = guards.NewSafeExchange(paper,
		risk.NewEngine(cfg.RiskLimits(), cfg.DuplicateWindow()),
		day,
		guards.Config{
			OrdersPerMinute:       cfg.Guards.OrdersPerMinute,
			BreakerThreshold:      cfg.Guards.BreakerThreshold,
			BreakerCooldown:       cfg.BreakerCooldown(),
			BreakerHalfOpenTrials: cfg.Guards.BreakerHalfOpenTrials,
		},
		opts...)
	return g, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	g, err := buildGateway(cfg, log, serveStartFresh)
	if err != nil {
		log.Error("gateway not started", zap.Error(err))
		return err
	}
	defer g.Close()

	lim := cfg.RiskLimits()
	log.Info("gateway ready",
		zap.String("mode", cfg.Mode),
		zap.String("account", cfg.Account.ID),
		zap.String("state_dir", cfg.State.Dir),
		zap.Stringer("max_order_value", lim.MaxOrderValue),
		zap.Stringer("daily_loss_limit", lim.DailyLossLimit),
		zap.Stringer("max_position_pct", lim.MaxPositionPct),
		zap.Duration("duplicate_window", cfg.DuplicateWindow()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveCompactEvery > 0 {
		go compactLoop(ctx, g.safe.Day(), serveCompactEvery, log)
	}

	srv := api.NewServer(g.safe, g.hub, log, cfg.Server.AllowedOrigins)
	return srv.Start(ctx, cfg.Server.Addr)
}

func compactLoop(ctx context.Context, day *risk.DayManager, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := day.Compact(); err != nil {
				log.Warn("compact daily state", zap.Error(err))
			}
		}
	}
}
