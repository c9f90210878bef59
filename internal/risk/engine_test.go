package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/tradegate/internal/order"
)

type fakeView struct {
	pnl    decimal.Decimal
	recent map[order.Fingerprint]bool
	err    error
}

func (f *fakeView) DailyPnL() (decimal.Decimal, error) { return f.pnl, f.err }

func (f *fakeView) HasRecentOrder(fp order.Fingerprint, _ time.Duration) (bool, error) {
	return f.recent[fp], f.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustOrder(t *testing.T, sym string, a order.Action, qty int64, typ order.Type, limit *decimal.Decimal) order.Request {
	t.Helper()
	var stop *decimal.Decimal
	if typ.NeedsStopPrice() {
		stop = ptr("1")
	}
	r, err := order.New(sym, a, qty, typ, limit, stop)
	require.NoError(t, err)
	return r
}

func account(bp, nlv string) AccountSnapshot {
	return AccountSnapshot{CashBalance: dec(bp), BuyingPower: dec(bp), NetLiquidation: dec(nlv)}
}

func TestEvaluate_AllDisabledPasses(t *testing.T) {
	t.Parallel()

	e := NewEngine(Limits{}, 0)
	view := &fakeView{pnl: dec("-1000000")}

	buy := mustOrder(t, "AAPL", order.Buy, 10, order.Market, nil)
	res := e.Evaluate(Input{Order: buy, LastPrice: dec("100"), Account: account("5000", "5000")}, view)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)

	sell := mustOrder(t, "AAPL", order.Sell, 10, order.Market, nil)
	res = e.Evaluate(Input{Order: sell, LastPrice: dec("100"), Positions: Positions{"AAPL": 10}}, view)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestEvaluate_ShortSell(t *testing.T) {
	t.Parallel()

	e := NewEngine(Limits{}, 0)
	tests := []struct {
		name string
		held int64
		qty  int64
		want string
	}{
		{"no position", 0, 50, "short sell blocked: no position in MSFT"},
		{"exceeds held", 20, 50, "short sell blocked: order quantity 50 exceeds held shares 20 for MSFT"},
		{"exactly held", 50, 50, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := mustOrder(t, "MSFT", order.Sell, tt.qty, order.Market, nil)
			res := e.Evaluate(Input{Order: o, LastPrice: dec("300"), Positions: Positions{"MSFT": tt.held}}, &fakeView{})
			if tt.want == "" {
				assert.True(t, res.Passed)
				assert.Empty(t, res.Errors)
				return
			}
			assert.False(t, res.Passed)
			assert.Equal(t, []string{tt.want}, res.Errors)
		})
	}
}

func TestEvaluate_ShortSellScenario(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "MSFT", order.Sell, 50, order.Market, nil)
	res := NewEngine(Limits{}, 0).Evaluate(Input{Order: o, LastPrice: dec("400")}, &fakeView{})
	assert.False(t, res.Passed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "short sell blocked: ")
}

func TestEvaluate_BuyingPowerBoundary(t *testing.T) {
	t.Parallel()

	e := NewEngine(Limits{}, 0)
	o := mustOrder(t, "AAPL", order.Buy, 100, order.Limit, ptr("150.00"))

	// cost = 100 x 150 x 1.01 = 15150
	res := e.Evaluate(Input{Order: o, Account: account("15150", "50000")}, &fakeView{})
	assert.True(t, res.Passed, "cost equal to buying power must pass")

	res = e.Evaluate(Input{Order: o, Account: account("15149.99", "50000")}, &fakeView{})
	assert.False(t, res.Passed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t,
		"insufficient buying power: estimated cost $15,150.00 (incl. 1% buffer) exceeds buying power $15,149.99",
		res.Errors[0])
}

func TestEvaluate_LimitScenario(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 100, order.Limit, ptr("150.00"))
	res := NewEngine(Limits{}, 0).Evaluate(Input{Order: o, Account: account("20000", "20000")}, &fakeView{})
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)

	est := EstimateOrder(o, decimal.Zero)
	assert.True(t, est.Cost.Equal(dec("15150")))
	assert.True(t, est.Value.Equal(dec("15000")))
}

func TestEvaluate_SellSkipsBuyingPower(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Sell, 100, order.Market, nil)
	res := NewEngine(Limits{}, 0).Evaluate(Input{
		Order: o, LastPrice: dec("150"), Account: account("0", "0"), Positions: Positions{"AAPL": 100},
	}, &fakeView{})
	assert.True(t, res.Passed)
}

func TestEvaluate_MaxOrderValue(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 10, order.Limit, ptr("100"))
	acct := account("1000000", "1000000")

	// disabled: any value passes
	res := NewEngine(Limits{MaxOrderValue: FromSentinel(0)}, 0).Evaluate(Input{Order: o, Account: acct}, &fakeView{})
	assert.True(t, res.Passed)

	// equal to the limit: strictly greater only
	res = NewEngine(Limits{MaxOrderValue: FromSentinel(1000)}, 0).Evaluate(Input{Order: o, Account: acct}, &fakeView{})
	assert.True(t, res.Passed)

	res = NewEngine(Limits{MaxOrderValue: FromSentinel(999.99)}, 0).Evaluate(Input{Order: o, Account: acct}, &fakeView{})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"max order value exceeded: $1,000.00 > limit $999.99"}, res.Errors)

	// applies to SELL orders too
	sell := mustOrder(t, "AAPL", order.Sell, 10, order.Limit, ptr("100"))
	res = NewEngine(Limits{MaxOrderValue: FromSentinel(500)}, 0).Evaluate(Input{
		Order: sell, Positions: Positions{"AAPL": 10},
	}, &fakeView{})
	assert.False(t, res.Passed)
	assert.Len(t, res.Errors, 1)
}

func TestEvaluate_Concentration(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "NVDA", order.Buy, 10, order.Limit, ptr("100"))
	e := NewEngine(Limits{MaxPositionPct: FromSentinel(0.1)}, 0)

	res := e.Evaluate(Input{Order: o, Account: account("100000", "5000")}, &fakeView{})
	assert.True(t, res.Passed, "concentration is a warning only")
	assert.Empty(t, res.Errors)
	assert.Equal(t,
		[]string{"position concentration: order value $1,000.00 exceeds 10.0% of net liquidation ($500.00)"},
		res.Warnings)

	res = e.Evaluate(Input{Order: o, Account: account("100000", "10000")}, &fakeView{})
	assert.Empty(t, res.Warnings)
}

func TestEvaluate_DailyLoss(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 1, order.Limit, ptr("10"))
	acct := account("1000", "1000")
	e := NewEngine(Limits{DailyLossLimit: FromSentinel(1000)}, 0)

	tests := []struct {
		pnl     string
		blocked bool
	}{
		{"0", false},
		{"500", false},
		{"-999.99", false},
		{"-1000", true},
		{"-1100", true},
	}
	for _, tt := range tests {
		res := e.Evaluate(Input{Order: o, Account: acct}, &fakeView{pnl: dec(tt.pnl)})
		assert.Equal(t, !tt.blocked, res.Passed, tt.pnl)
	}

	res := e.Evaluate(Input{Order: o, Account: acct}, &fakeView{pnl: dec("-1100")})
	assert.Equal(t, []string{"daily loss limit reached: realized P&L -$1,100.00 breaches -$1,000.00 limit"}, res.Errors)

	// disabled limit never consults the view
	res = NewEngine(Limits{}, 0).Evaluate(Input{Order: o, Account: acct}, &fakeView{pnl: dec("-1e9")})
	assert.True(t, res.Passed)
}

func TestEvaluate_StateViewErrorFailsClosed(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 1, order.Limit, ptr("10"))
	view := &fakeView{err: errors.New("disk on fire")}
	res := NewEngine(Limits{DailyLossLimit: FromSentinel(100)}, 0).Evaluate(Input{Order: o, Account: account("1000", "1000")}, view)
	assert.False(t, res.Passed)
	assert.Len(t, res.Errors, 2)
}

func TestEvaluate_NilStateViewFailsClosed(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 1, order.Limit, ptr("10"))
	in := Input{Order: o, Account: account("1000", "1000")}

	res := NewEngine(Limits{DailyLossLimit: FromSentinel(100)}, 0).Evaluate(in, nil)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"daily loss limit unverifiable: no daily state available"}, res.Errors)
	assert.Equal(t, []string{"duplicate check skipped: no daily state available"}, res.Warnings)

	res = NewEngine(Limits{}, 0).Evaluate(in, nil)
	assert.True(t, res.Passed)
	assert.Len(t, res.Warnings, 1)
}

func TestEvaluate_DuplicateIsWarning(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Buy, 100, order.Limit, ptr("150"))
	view := &fakeView{recent: map[order.Fingerprint]bool{o.Fingerprint(): true}}
	res := NewEngine(Limits{}, 0).Evaluate(Input{Order: o, Account: account("20000", "20000")}, view)
	assert.True(t, res.Passed)
	assert.Equal(t,
		[]string{"duplicate order: a similar BUY order for 100 AAPL was submitted within the last 1m0s"},
		res.Warnings)
}

func TestEvaluate_ReportsEveryFailure(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "GME", order.Sell, 100, order.Limit, ptr("50"))
	view := &fakeView{pnl: dec("-5000"), recent: map[order.Fingerprint]bool{o.Fingerprint(): true}}
	e := NewEngine(Limits{
		MaxOrderValue:  FromSentinel(1000),
		DailyLossLimit: FromSentinel(2000),
		MaxPositionPct: FromSentinel(0.05),
	}, 0)

	res := e.Evaluate(Input{Order: o, Account: account("0", "10000"), Positions: Positions{"GME": 10}}, view)
	assert.False(t, res.Passed)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "short sell blocked")
	assert.Contains(t, res.Errors[1], "max order value exceeded")
	assert.Contains(t, res.Errors[2], "daily loss limit reached")
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "position concentration")
	assert.Contains(t, res.Warnings[1], "duplicate order")
}

func TestEvaluate_UnknownPrice(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "XYZ", order.Buy, 1, order.Market, nil)
	res := NewEngine(Limits{}, 0).Evaluate(Input{Order: o, Account: account("0", "0")}, &fakeView{})
	assert.True(t, res.Passed)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "order value unknown")
}

func TestEvaluate_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	o := mustOrder(t, "AAPL", order.Sell, 5, order.Market, nil)
	pos := Positions{"AAPL": 5}
	in := Input{Order: o, LastPrice: dec("10"), Positions: pos}
	e := NewEngine(Limits{MaxOrderValue: FromSentinel(10)}, 0)

	first := e.Evaluate(in, &fakeView{})
	second := e.Evaluate(in, &fakeView{})
	assert.Equal(t, first, second)
	assert.Equal(t, Positions{"AAPL": 5}, pos)
}

func TestLimit(t *testing.T) {
	t.Parallel()

	assert.False(t, NoLimit().Enabled())
	assert.False(t, FromSentinel(0).Enabled())
	assert.False(t, LimitOf(dec("-5")).Enabled())
	assert.Equal(t, "none", FromSentinel(0).String())

	l := FromSentinel(250.5)
	assert.True(t, l.Enabled())
	assert.True(t, l.Value().Equal(dec("250.5")))
}

func TestResultFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Result{Passed: true}.Format())
	r := Result{Errors: []string{"a"}, Warnings: []string{"b", "c"}}
	assert.Equal(t, "SAFETY ERRORS:\n  - a\nSAFETY WARNINGS:\n  - b\n  - c", r.Format())
}

func TestMoney(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0.00", Money(decimal.Zero))
	assert.Equal(t, "$999.50", Money(dec("999.5")))
	assert.Equal(t, "$1,000.00", Money(dec("1000")))
	assert.Equal(t, "-$1,234,567.89", Money(dec("-1234567.891")))
	assert.Equal(t, "$0.00", Money(dec("-0.001")))
	assert.Equal(t, "-$0.01", Money(dec("-0.005")))
}
