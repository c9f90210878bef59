// Package order defines the validated order request that flows through the gateway.
//
// A Request can only be obtained from New, which enforces the structural invariants
// (symbol, positive quantity, price fields matching the order type). Everything
// downstream assumes a well-formed Request and never re-validates it.
package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
	Trailing  Type = "TRAILING"
)

// broker-style abbreviations accepted on input
var typeAliases = map[string]Type{
	"MARKET":     Market,
	"MKT":        Market,
	"LIMIT":      Limit,
	"LMT":        Limit,
	"STOP":       Stop,
	"STP":        Stop,
	"STOP_LIMIT": StopLimit,
	"STP_LMT":    StopLimit,
	"TRAILING":   Trailing,
	"TRAIL":      Trailing,
}

// NeedsLimitPrice reports whether t requires a limit price.
func (t Type) NeedsLimitPrice() bool { return t == Limit || t == StopLimit }

// NeedsStopPrice reports whether t requires a stop price.
func (t Type) NeedsStopPrice() bool { return t == Stop || t == StopLimit }

// ValidationError describes a malformed order request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseAction accepts BUY or SELL in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case Buy, Sell:
		return a, nil
	default:
		return "", invalid("action", "%q must be BUY or SELL", s)
	}
}

// ParseType accepts the canonical names and the common abbreviations (MKT, LMT, STP, STP_LMT, TRAIL).
func ParseType(s string) (Type, error) {
	t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", invalid("order_type", "%q must be one of MARKET, LIMIT, STOP, STOP_LIMIT, TRAILING", s)
	}
	return t, nil
}

// Request is an immutable, structurally valid order.
type Request struct {
	symbol     string
	action     Action
	quantity   int64
	orderType  Type
	limitPrice *decimal.Decimal
	stopPrice  *decimal.Decimal
}

// New validates its inputs and builds a Request. The symbol is normalized to upper case.
// limitPrice must be set iff t is LIMIT or STOP_LIMIT; stopPrice iff t is STOP or STOP_LIMIT.
func New(symbol string, action Action, quantity int64, t Type, limitPrice, stopPrice *decimal.Decimal) (Request, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return Request{}, invalid("symbol", "must be non-empty")
	}
	if action != Buy && action != Sell {
		return Request{}, invalid("action", "%q must be BUY or SELL", action)
	}
	if quantity <= 0 {
		return Request{}, invalid("quantity", "%d must be a positive integer", quantity)
	}
	switch t {
	case Market, Limit, Stop, StopLimit, Trailing:
	default:
		return Request{}, invalid("order_type", "unknown order type %q", t)
	}

	switch {
	case t.NeedsLimitPrice() && limitPrice == nil:
		return Request{}, invalid("limit_price", "required for %s orders", t)
	case !t.NeedsLimitPrice() && limitPrice != nil:
		return Request{}, invalid("limit_price", "not allowed for %s orders", t)
	case t.NeedsStopPrice() && stopPrice == nil:
		return Request{}, invalid("stop_price", "required for %s orders", t)
	case !t.NeedsStopPrice() && stopPrice != nil:
		return Request{}, invalid("stop_price", "not allowed for %s orders", t)
	}
	if limitPrice != nil && !limitPrice.IsPositive() {
		return Request{}, invalid("limit_price", "%s must be positive", limitPrice)
	}
	if stopPrice != nil && !stopPrice.IsPositive() {
		return Request{}, invalid("stop_price", "%s must be positive", stopPrice)
	}

	return Request{
		symbol:     sym,
		action:     action,
		quantity:   quantity,
		orderType:  t,
		limitPrice: copyPrice(limitPrice),
		stopPrice:  copyPrice(stopPrice),
	}, nil
}

func copyPrice(p *decimal.Decimal) *decimal.Decimal {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (r Request) Symbol() string  { return r.symbol }
func (r Request) Action() Action  { return r.action }
func (r Request) Quantity() int64 { return r.quantity }
func (r Request) Type() Type      { return r.orderType }

// LimitPrice returns the limit price and whether one is set.
func (r Request) LimitPrice() (decimal.Decimal, bool) {
	if r.limitPrice == nil {
		return decimal.Zero, false
	}
	return *r.limitPrice, true
}

// StopPrice returns the stop price and whether one is set.
func (r Request) StopPrice() (decimal.Decimal, bool) {
	if r.stopPrice == nil {
		return decimal.Zero, false
	}
	return *r.stopPrice, true
}

func (r Request) String() string {
	s := fmt.Sprintf("%s %d %s %s", r.action, r.quantity, r.symbol, r.orderType)
	if lp, ok := r.LimitPrice(); ok {
		s += " @" + lp.StringFixed(2)
	}
	if sp, ok := r.StopPrice(); ok {
		s += " stop " + sp.StringFixed(2)
	}
	return s
}
