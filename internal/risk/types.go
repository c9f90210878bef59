package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/order"
)

// Limit is a threshold that is either disabled or holds a positive value.
// The zero Limit is disabled.
type Limit struct {
	value   decimal.Decimal
	enabled bool
}

// NoLimit returns a disabled limit.
func NoLimit() Limit { return Limit{} }

// LimitOf returns an enabled limit of v. Non-positive values yield a disabled limit.
func LimitOf(v decimal.Decimal) Limit {
	if !v.IsPositive() {
		return Limit{}
	}
	return Limit{value: v, enabled: true}
}

// FromSentinel maps the external configuration convention (0 = no limit) onto a Limit.
func FromSentinel(v float64) Limit { return LimitOf(decimal.NewFromFloat(v)) }

func (l Limit) Enabled() bool          { return l.enabled }
func (l Limit) Value() decimal.Decimal { return l.value }

func (l Limit) String() string {
	if !l.enabled {
		return "none"
	}
	return l.value.String()
}

// Limits defines static configuration for risk controls. Immutable for the process lifetime.
type Limits struct {
	MaxOrderValue  Limit // max currency value of a single order
	DailyLossLimit Limit // max realized loss for the trading day
	MaxPositionPct Limit // max order value as a fraction of net liquidation (0.25 = 25%)
}

// DefaultDuplicateWindow is how far back identical orders count as duplicates.
const DefaultDuplicateWindow = 60 * time.Second

// AccountSnapshot is a point-in-time view of account balances.
type AccountSnapshot struct {
	CashBalance    decimal.Decimal `json:"cash_balance"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	NetLiquidation decimal.Decimal `json:"net_liquidation"`
}

// Positions maps symbol to held quantity. A missing symbol means nothing is held.
type Positions map[string]int64

// Held returns the quantity held for symbol.
func (p Positions) Held(symbol string) int64 {
	if p == nil {
		return 0
	}
	return p[symbol]
}

// StateView is the read side of the daily trading state the engine consults.
type StateView interface {
	DailyPnL() (decimal.Decimal, error)
	HasRecentOrder(fp order.Fingerprint, window time.Duration) (bool, error)
}

// Result is the verdict of a safety evaluation. Passed is true iff Errors is empty.
type Result struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) fail(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Passed = false
}

func (r *Result) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// DailyState is the persisted, date-scoped trading record.
type DailyState struct {
	Date         string          `json:"date"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	RecentOrders []OrderStamp    `json:"recent_orders"`
}

// OrderStamp is one locally accepted submission.
type OrderStamp struct {
	Fingerprint order.Fingerprint `json:"fingerprint"`
	Timestamp   time.Time         `json:"timestamp"`
}

func (s DailyState) clone() DailyState {
	out := s
	out.RecentOrders = append([]OrderStamp(nil), s.RecentOrders...)
	return out
}
