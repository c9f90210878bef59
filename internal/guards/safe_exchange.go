// Package guards is the order gateway: every order passes the safety engine before
// it reaches the exchange, and every accepted order is recorded in the daily state.
package guards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/exchange"
	"github.com/chidi150c/tradegate/internal/journal"
	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/tradeplan"
	"github.com/chidi150c/tradegate/internal/util"
)

var (
	ErrBreakerOpen = errors.New("circuit breaker open")
	ErrRateLimited = errors.New("order rate limit hit")
	ErrUnrecorded  = errors.New("order accepted but not recorded")
)

// UnrecordedError reports an order the exchange accepted whose fingerprint or P&L
// could not be persisted. It needs manual reconciliation and must not be resubmitted.
type UnrecordedError struct {
	OrderID string
	Err     error
}

func (e *UnrecordedError) Error() string {
	return fmt.Sprintf("%s (broker order %s): %v", ErrUnrecorded, e.OrderID, e.Err)
}

func (e *UnrecordedError) Unwrap() error        { return e.Err }
func (e *UnrecordedError) Is(target error) bool { return target == ErrUnrecorded }

type Config struct {
	OrdersPerMinute       int
	BreakerThreshold      int
	BreakerCooldown       time.Duration
	BreakerHalfOpenTrials int
}

// Verdict is the outcome of evaluating one order against fresh snapshots.
type Verdict struct {
	Order       string            `json:"order"`
	Fingerprint order.Fingerprint `json:"fingerprint"`
	Estimate    risk.Estimate     `json:"estimate"`
	risk.Result
}

type Placement struct {
	Verdict
	Blocked bool            `json:"blocked"`
	Ack     *exchange.Ack   `json:"ack,omitempty"`
	Plan    *tradeplan.Plan `json:"plan,omitempty"`
}

type Option func(*SafeExchange)

func WithLogger(l *zap.Logger) Option      { return func(s *SafeExchange) { s.log = l } }
func WithClock(c util.Clock) Option        { return func(s *SafeExchange) { s.clock = c } }
func WithJournal(j journal.Journal) Option { return func(s *SafeExchange) { s.journal = j } }
func WithPlans(p *tradeplan.Store) Option  { return func(s *SafeExchange) { s.plans = p } }
func WithDecisionHook(f func(journal.Decision)) Option {
	return func(s *SafeExchange) { s.onDecision = f }
}

// SafeExchange wraps an exchange with the safety engine, daily state recording,
// a rate limit and a circuit breaker. Submissions are never retried.
type SafeExchange struct {
	inner  exchange.Exchange
	engine *risk.Engine
	day    *risk.DayManager

	log        *zap.Logger
	clock      util.Clock
	journal    journal.Journal
	plans      *tradeplan.Store
	onDecision func(journal.Decision)

	rate *rateWindow
	brk  *breaker
}

func NewSafeExchange(inner exchange.Exchange, engine *risk.Engine, day *risk.DayManager, cfg Config, opts ...Option) *SafeExchange {
	s := &SafeExchange{
		inner:  inner,
		engine: engine,
		day:    day,
		log:    zap.NewNop(),
		clock:  util.RealClock{},
		rate:   &rateWindow{perMinute: cfg.OrdersPerMinute},
		brk:    newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, cfg.BreakerHalfOpenTrials),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *SafeExchange) Engine() *risk.Engine        { return s.engine }
func (s *SafeExchange) Day() *risk.DayManager       { return s.day }
func (s *SafeExchange) Plans() *tradeplan.Store     { return s.plans }
func (s *SafeExchange) Exchange() exchange.Exchange { return s.inner }
func (s *SafeExchange) BreakerState() string        { return s.brk.current().String() }

// evaluate fetches fresh snapshots and runs the engine. Nothing is cached between calls.
func (s *SafeExchange) evaluate(ctx context.Context, req order.Request) (Verdict, error) {
	acct, err := s.inner.Account(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("fetch account: %w", err)
	}
	pos, err := s.inner.Positions(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("fetch positions: %w", err)
	}
	var last decimal.Decimal
	if _, hasLimit := req.LimitPrice(); !hasLimit {
		last, err = s.inner.LastPrice(ctx, req.Symbol())
		if err != nil && !errors.Is(err, exchange.ErrNoPrice) {
			return Verdict{}, fmt.Errorf("fetch last price: %w", err)
		}
	}

	in := risk.Input{
		Order:     req,
		LastPrice: last,
		Account: risk.AccountSnapshot{
			CashBalance:    acct.Cash,
			BuyingPower:    acct.BuyingPower,
			NetLiquidation: acct.NetLiquidation,
		},
		Positions: risk.Positions(pos),
	}
	v := Verdict{
		Order:       req.String(),
		Fingerprint: req.Fingerprint(),
		Estimate:    risk.EstimateOrder(req, last),
		Result:      s.engine.Evaluate(in, s.day),
	}
	if req.Action() == order.Buy && !v.Estimate.Known {
		v.Errors = append(v.Errors, fmt.Sprintf("buying power unverifiable: no reference price for %s", req.Symbol()))
		v.Passed = false
	}
	return v, nil
}

// Preview evaluates an order without submitting or recording anything in the daily state.
func (s *SafeExchange) Preview(ctx context.Context, req order.Request) (Verdict, error) {
	v, err := s.evaluate(ctx, req)
	if err != nil {
		return Verdict{}, err
	}
	if len(v.Warnings) > 0 {
		metricSafetyWarnings.WithLabelValues("preview").Add(float64(len(v.Warnings)))
	}
	s.emit(ctx, s.decision(journal.KindPreview, req, v, "", ""))
	return v, nil
}

// Place gates, evaluates and submits an order. The breaker trial and rate slot are
// reserved up front and given back when nothing reaches the exchange. A blocked
// order is not an error: it comes back with Blocked set and the verdict explaining
// why. An order the exchange accepted but that could not be recorded returns both
// the placement and an *UnrecordedError.
func (s *SafeExchange) Place(ctx context.Context, req order.Request, reason string) (Placement, error) {
	now := s.clock.Now()
	metricOrdersAttempted.Inc()

	trial, ok := s.brk.allow(now)
	if !ok {
		metricOrdersSuppressed.Inc()
		return Placement{}, ErrBreakerOpen
	}
	if !s.rate.reserve(now) {
		s.brk.release(trial)
		metricOrdersSuppressed.Inc()
		return Placement{}, ErrRateLimited
	}
	submitted := false
	defer func() {
		if !submitted {
			s.brk.release(trial)
			s.rate.release(now)
		}
	}()

	v, err := s.evaluate(ctx, req)
	if err != nil {
		return Placement{}, err
	}
	if len(v.Warnings) > 0 {
		metricSafetyWarnings.WithLabelValues("place").Add(float64(len(v.Warnings)))
	}
	if !v.Passed {
		metricOrdersBlocked.Inc()
		s.log.Info("order blocked",
			zap.String("order", v.Order),
			zap.Strings("errors", v.Errors),
			zap.Strings("warnings", v.Warnings))
		s.emit(ctx, s.decision(journal.KindBlocked, req, v, "", reason))
		return Placement{Verdict: v, Blocked: true}, nil
	}

	submitted = true
	ack, err := s.inner.Submit(ctx, req)
	if err != nil {
		s.brk.failure(s.clock.Now())
		metricOrdersFailed.Inc()
		s.log.Warn("order submission failed", zap.String("order", v.Order), zap.Error(err))
		s.emit(ctx, s.decision(journal.KindFailed, req, v, "", err.Error()))
		return Placement{Verdict: v}, fmt.Errorf("submit %s: %w", v.Order, err)
	}
	s.brk.success()
	metricOrdersPlaced.Inc()

	p := Placement{Verdict: v, Ack: &ack}
	recErr := s.day.RecordOrder(v.Fingerprint)
	if ack.RealizedPnL != nil {
		if err := s.recordPnL(ctx, *ack.RealizedPnL, ack.OrderID); err != nil {
			recErr = errors.Join(recErr, err)
		}
	}

	if reason != "" && s.plans != nil {
		plan, err := s.plans.Create(ack.OrderID, req, reason)
		if err != nil {
			s.log.Warn("trade plan not saved", zap.String("order_id", ack.OrderID), zap.Error(err))
		} else {
			p.Plan = &plan
		}
	}

	s.emit(ctx, s.decision(journal.KindPlaced, req, v, ack.OrderID, reason))
	s.log.Info("order placed",
		zap.String("order", v.Order),
		zap.String("order_id", ack.OrderID),
		zap.String("status", string(ack.Status)),
		zap.String("fingerprint", v.Fingerprint.Short()))

	if recErr != nil {
		metricOrdersUnrecorded.Inc()
		s.log.Error("order accepted but daily state not recorded; reconcile manually",
			zap.String("order_id", ack.OrderID),
			zap.String("order", v.Order),
			zap.Error(recErr))
		return p, &UnrecordedError{OrderID: ack.OrderID, Err: recErr}
	}
	return p, nil
}

// Cancel cancels a working order and archives its trade plan.
func (s *SafeExchange) Cancel(ctx context.Context, orderID, reason string) error {
	if err := s.inner.Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	if reason == "" {
		reason = "cancelled"
	}
	if s.plans != nil {
		if _, err := s.plans.Archive(orderID, reason); err != nil {
			s.log.Warn("trade plan not archived", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	s.emit(ctx, journal.Decision{
		Time:          s.clock.Now(),
		Kind:          journal.KindCancel,
		Passed:        true,
		BrokerOrderID: orderID,
		Note:          reason,
	})
	s.log.Info("order cancelled", zap.String("order_id", orderID), zap.String("reason", reason))
	return nil
}

// RecordFill adds realized P&L learned after submission, such as a later fill of a
// resting order.
func (s *SafeExchange) RecordFill(ctx context.Context, amount decimal.Decimal, orderID string) error {
	return s.recordPnL(ctx, amount, orderID)
}

func (s *SafeExchange) recordPnL(ctx context.Context, amount decimal.Decimal, orderID string) error {
	if err := s.day.RecordPnL(amount); err != nil {
		return err
	}
	if total, err := s.day.DailyPnL(); err == nil {
		metricDailyPnL.Set(total.InexactFloat64())
	}
	if s.journal != nil {
		now := s.clock.Now()
		err := s.journal.RecordPnL(ctx, journal.PnLEntry{
			Time:    now,
			Date:    util.DateKey(s.day.Location(), now),
			Amount:  amount,
			OrderID: orderID,
		})
		if err != nil {
			s.log.Warn("journal pnl failed", zap.Error(err))
		}
	}
	return nil
}

func (s *SafeExchange) decision(kind journal.Kind, req order.Request, v Verdict, orderID, note string) journal.Decision {
	d := journal.Decision{
		Time:          s.clock.Now(),
		Kind:          kind,
		Symbol:        req.Symbol(),
		Action:        string(req.Action()),
		Quantity:      req.Quantity(),
		OrderType:     string(req.Type()),
		Fingerprint:   string(v.Fingerprint),
		Passed:        v.Passed,
		Errors:        v.Errors,
		Warnings:      v.Warnings,
		BrokerOrderID: orderID,
		Note:          note,
	}
	if lp, ok := req.LimitPrice(); ok {
		d.LimitPrice = &lp
	}
	if sp, ok := req.StopPrice(); ok {
		d.StopPrice = &sp
	}
	return d
}

// emit journals a decision and forwards it to the decision hook. Journal failures
// are logged only; the audit trail never gates trading.
func (s *SafeExchange) emit(ctx context.Context, d journal.Decision) {
	if d.ID == "" {
		d.ID = util.NewID()
	}
	if s.journal != nil {
		if err := s.journal.RecordDecision(ctx, d); err != nil {
			s.log.Warn("journal decision failed", zap.String("kind", string(d.Kind)), zap.Error(err))
		}
	}
	if s.onDecision != nil {
		s.onDecision(d)
	}
}
