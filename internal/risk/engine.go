package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/order"
)

// buyingPowerBuffer absorbs slippage on market-priced fills when checking cash sufficiency.
var buyingPowerBuffer = decimal.RequireFromString("1.01")

// Input bundles an order with the fresh snapshots it is judged against.
// LastPrice is the most recent traded price; it is used when the order carries no limit price.
type Input struct {
	Order     order.Request
	LastPrice decimal.Decimal
	Account   AccountSnapshot
	Positions Positions
}

// Estimate is the engine's view of what an order is worth.
type Estimate struct {
	Known          bool            `json:"known"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Value          decimal.Decimal `json:"value"` // quantity x reference price
	Cost           decimal.Decimal `json:"cost"`  // Value plus buffer, BUY only
}

// EstimateOrder prices an order from its limit price, falling back to lastPrice.
func EstimateOrder(o order.Request, lastPrice decimal.Decimal) Estimate {
	ref, ok := o.LimitPrice()
	if !ok {
		ref = lastPrice
	}
	if !ref.IsPositive() {
		return Estimate{}
	}
	value := ref.Mul(decimal.NewFromInt(o.Quantity()))
	est := Estimate{Known: true, ReferencePrice: ref, Value: value}
	if o.Action() == order.Buy {
		est.Cost = value.Mul(buyingPowerBuffer)
	}
	return est
}

// Engine runs the pre-trade checks. It holds only immutable configuration and
// never mutates its inputs, so concurrent Evaluate calls need no coordination.
type Engine struct {
	lim    Limits
	window time.Duration
}

func NewEngine(lim Limits, duplicateWindow time.Duration) *Engine {
	if duplicateWindow <= 0 {
		duplicateWindow = DefaultDuplicateWindow
	}
	return &Engine{lim: lim, window: duplicateWindow}
}

func (e *Engine) Limits() Limits                { return e.lim }
func (e *Engine) DuplicateWindow() time.Duration { return e.window }

// Evaluate runs every check independently and reports all failures at once.
// Checks whose limit is disabled contribute nothing to the result.
func (e *Engine) Evaluate(in Input, view StateView) Result {
	res := Result{Passed: true, Errors: []string{}, Warnings: []string{}}
	o := in.Order
	est := EstimateOrder(o, in.LastPrice)

	e.checkShortSell(o, in.Positions, &res)

	if !est.Known && (o.Action() == order.Buy || e.lim.MaxOrderValue.Enabled() || e.lim.MaxPositionPct.Enabled()) {
		res.warn(fmt.Sprintf("order value unknown: no reference price for %s, value checks skipped", o.Symbol()))
	}
	if est.Known {
		e.checkBuyingPower(o, est, in.Account, &res)
		e.checkMaxOrderValue(est, &res)
		e.checkConcentration(est, in.Account, &res)
	}

	if view == nil {
		if e.lim.DailyLossLimit.Enabled() {
			res.fail("daily loss limit unverifiable: no daily state available")
		}
		res.warn("duplicate check skipped: no daily state available")
		return res
	}
	e.checkDailyLoss(view, &res)
	e.checkDuplicate(o, view, &res)
	return res
}

func (e *Engine) checkShortSell(o order.Request, pos Positions, res *Result) {
	if o.Action() != order.Sell {
		return
	}
	held := pos.Held(o.Symbol())
	if held <= 0 {
		res.fail(fmt.Sprintf("short sell blocked: no position in %s", o.Symbol()))
		return
	}
	if o.Quantity() > held {
		res.fail(fmt.Sprintf("short sell blocked: order quantity %d exceeds held shares %d for %s",
			o.Quantity(), held, o.Symbol()))
	}
}

func (e *Engine) checkBuyingPower(o order.Request, est Estimate, acct AccountSnapshot, res *Result) {
	if o.Action() != order.Buy {
		return
	}
	if est.Cost.GreaterThan(acct.BuyingPower) {
		res.fail(fmt.Sprintf("insufficient buying power: estimated cost %s (incl. 1%% buffer) exceeds buying power %s",
			Money(est.Cost), Money(acct.BuyingPower)))
	}
}

func (e *Engine) checkMaxOrderValue(est Estimate, res *Result) {
	lim := e.lim.MaxOrderValue
	if !lim.Enabled() {
		return
	}
	if est.Value.GreaterThan(lim.Value()) {
		res.fail(fmt.Sprintf("max order value exceeded: %s > limit %s", Money(est.Value), Money(lim.Value())))
	}
}

func (e *Engine) checkConcentration(est Estimate, acct AccountSnapshot, res *Result) {
	lim := e.lim.MaxPositionPct
	if !lim.Enabled() {
		return
	}
	ceiling := lim.Value().Mul(acct.NetLiquidation)
	if est.Value.GreaterThan(ceiling) {
		res.warn(fmt.Sprintf("position concentration: order value %s exceeds %s%% of net liquidation (%s)",
			Money(est.Value), lim.Value().Mul(decimal.NewFromInt(100)).StringFixed(1), Money(ceiling)))
	}
}

func (e *Engine) checkDailyLoss(view StateView, res *Result) {
	lim := e.lim.DailyLossLimit
	if !lim.Enabled() {
		return
	}
	pnl, err := view.DailyPnL()
	if err != nil {
		res.fail(fmt.Sprintf("daily loss limit unverifiable: %v", err))
		return
	}
	if pnl.IsNegative() && pnl.Neg().GreaterThanOrEqual(lim.Value()) {
		res.fail(fmt.Sprintf("daily loss limit reached: realized P&L %s breaches -%s limit",
			Money(pnl), Money(lim.Value())))
	}
}

func (e *Engine) checkDuplicate(o order.Request, view StateView, res *Result) {
	dup, err := view.HasRecentOrder(o.Fingerprint(), e.window)
	if err != nil {
		res.fail(fmt.Sprintf("duplicate check unverifiable: %v", err))
		return
	}
	if dup {
		res.warn(fmt.Sprintf("duplicate order: a similar %s order for %d %s was submitted within the last %s",
			o.Action(), o.Quantity(), o.Symbol(), e.window))
	}
}
