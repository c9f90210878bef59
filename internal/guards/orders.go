package guards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/exchange"
	"github.com/chidi150c/tradegate/internal/journal"
	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/risk"
	"github.com/chidi150c/tradegate/internal/tradeplan"
)

// OrderChange is a modification of a working order. Nil fields stay unchanged.
type OrderChange struct {
	Quantity   *int64
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
}

func (c OrderChange) empty() bool {
	return c.Quantity == nil && c.LimitPrice == nil && c.StopPrice == nil
}

// changes renders the modification for the trade plan history.
func (c OrderChange) changes() map[string]any {
	m := make(map[string]any, 3)
	if c.Quantity != nil {
		m["quantity"] = *c.Quantity
	}
	if c.LimitPrice != nil {
		m["limit_price"] = c.LimitPrice.String()
	}
	if c.StopPrice != nil {
		m["stop_price"] = c.StopPrice.String()
	}
	return m
}

func (c OrderChange) String() string {
	m := c.changes()
	var parts []string
	for _, k := range []string{"quantity", "limit_price", "stop_price"} {
		if v, ok := m[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}

// Modification is the outcome of Modify. When Blocked is set nothing was sent
// to the exchange and Errors says why.
type Modification struct {
	Before  exchange.OrderInfo `json:"before"`
	After   exchange.OrderInfo `json:"after"`
	Changes map[string]any     `json:"changes"`
	Blocked bool               `json:"blocked"`
	risk.Result
}

// OrderDetail is an exchange order together with its trade plan, if any.
type OrderDetail struct {
	exchange.OrderInfo
	Plan *tradeplan.Plan `json:"plan,omitempty"`
}

// Modify changes the quantity or prices of a working order. A change that makes
// a BUY more expensive must fit the buying power (with the 1% buffer) and any
// max order value limit; otherwise it is blocked.
func (s *SafeExchange) Modify(ctx context.Context, orderID string, change OrderChange, reason string) (Modification, error) {
	if change.empty() {
		return Modification{}, &order.ValidationError{
			Field:  "changes",
			Reason: "specify at least one of quantity, limit_price, stop_price",
		}
	}

	before, err := s.inner.Order(ctx, orderID)
	if err != nil {
		return Modification{}, fmt.Errorf("modify %s: %w", orderID, err)
	}
	if before.Status != exchange.StatusWorking {
		return Modification{}, fmt.Errorf("modify %s: %w: order is %s", orderID, exchange.ErrNotModifiable, before.Status)
	}

	next := before
	if change.Quantity != nil {
		next.Quantity = *change.Quantity
	}
	if change.LimitPrice != nil {
		next.LimitPrice = change.LimitPrice
	}
	if change.StopPrice != nil {
		next.StopPrice = change.StopPrice
	}
	oldReq, err := before.Request()
	if err != nil {
		return Modification{}, fmt.Errorf("modify %s: %w", orderID, err)
	}
	newReq, err := next.Request()
	if err != nil {
		return Modification{}, err
	}

	m := Modification{
		Before:  before,
		Changes: change.changes(),
		Result:  risk.Result{Passed: true, Errors: []string{}, Warnings: []string{}},
	}
	if err := s.checkModification(ctx, oldReq, newReq, &m.Result); err != nil {
		return Modification{}, err
	}
	if !m.Passed {
		m.Blocked = true
		metricOrdersBlocked.Inc()
		s.log.Info("modification blocked",
			zap.String("order_id", orderID),
			zap.String("changes", change.String()),
			zap.Strings("errors", m.Errors))
		s.emit(ctx, s.decision(journal.KindBlocked, newReq, Verdict{Fingerprint: newReq.Fingerprint(), Result: m.Result}, orderID, "modify: "+reason))
		return m, nil
	}

	if err := s.inner.Modify(ctx, orderID, newReq); err != nil {
		return Modification{}, fmt.Errorf("modify %s: %w", orderID, err)
	}
	m.After, err = s.inner.Order(ctx, orderID)
	if err != nil {
		m.After = next
	}

	if s.plans != nil {
		if _, err := s.plans.RecordModification(orderID, m.Changes, reason); err != nil {
			s.log.Warn("trade plan modification not saved", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	s.emit(ctx, s.decision(journal.KindModify, newReq, Verdict{Fingerprint: newReq.Fingerprint(), Result: m.Result}, orderID, reason))
	s.log.Info("order modified", zap.String("order_id", orderID), zap.String("changes", change.String()))
	return m, nil
}

// checkModification re-checks what a modification can make worse: the extra cost
// of a BUY and the value of the order.
func (s *SafeExchange) checkModification(ctx context.Context, oldReq, newReq order.Request, res *risk.Result) error {
	var last decimal.Decimal
	if _, hasLimit := newReq.LimitPrice(); !hasLimit {
		var err error
		last, err = s.inner.LastPrice(ctx, newReq.Symbol())
		if err != nil && !errors.Is(err, exchange.ErrNoPrice) {
			return fmt.Errorf("fetch last price: %w", err)
		}
	}
	oldEst := risk.EstimateOrder(oldReq, last)
	newEst := risk.EstimateOrder(newReq, last)

	if !newEst.Known {
		if newReq.Action() == order.Buy && newReq.Quantity() > oldReq.Quantity() {
			res.Errors = append(res.Errors, fmt.Sprintf("buying power unverifiable: no reference price for %s", newReq.Symbol()))
			res.Passed = false
		}
		return nil
	}

	if newReq.Action() == order.Buy {
		extra := newEst.Cost.Sub(oldEst.Cost)
		if !oldEst.Known {
			extra = newEst.Cost
		}
		if extra.IsPositive() {
			acct, err := s.inner.Account(ctx)
			if err != nil {
				return fmt.Errorf("fetch account: %w", err)
			}
			if extra.GreaterThan(acct.BuyingPower) {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"insufficient buying power for modification: additional cost %s (incl. 1%% buffer) exceeds buying power %s",
					risk.Money(extra), risk.Money(acct.BuyingPower)))
				res.Passed = false
			}
		}
	}

	if lim := s.engine.Limits().MaxOrderValue; lim.Enabled() && newEst.Value.GreaterThan(lim.Value()) {
		res.Errors = append(res.Errors, fmt.Sprintf("max order value exceeded: %s > limit %s",
			risk.Money(newEst.Value), risk.Money(lim.Value())))
		res.Passed = false
	}
	return nil
}

// CancelAll cancels every working order and archives their trade plans.
func (s *SafeExchange) CancelAll(ctx context.Context, reason string) ([]string, error) {
	ids, err := s.inner.CancelAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if reason == "" {
		reason = "cancelled"
	}
	if s.plans != nil && len(ids) > 0 {
		if _, err := s.plans.ArchiveOrders(ids, reason); err != nil {
			s.log.Warn("trade plans not archived", zap.Strings("order_ids", ids), zap.Error(err))
		}
	}
	for _, id := range ids {
		s.emit(ctx, journal.Decision{
			Time:          s.clock.Now(),
			Kind:          journal.KindCancel,
			Passed:        true,
			BrokerOrderID: id,
			Note:          reason,
		})
	}
	s.log.Info("all working orders cancelled", zap.Int("count", len(ids)))
	return ids, nil
}

// MarkFilled archives the trade plan of an order known to have filled.
func (s *SafeExchange) MarkFilled(ctx context.Context, orderID, reason string) (tradeplan.Plan, error) {
	if s.plans == nil {
		return tradeplan.Plan{}, fmt.Errorf("%w %s", tradeplan.ErrUnknownPlan, orderID)
	}
	p, ok := s.plans.Get(orderID)
	if !ok {
		return tradeplan.Plan{}, fmt.Errorf("%w %s", tradeplan.ErrUnknownPlan, orderID)
	}
	if p.Status == tradeplan.Archived {
		return p, fmt.Errorf("%w: %s (%s)", tradeplan.ErrPlanArchived, orderID, p.ArchiveReason)
	}
	if reason == "" {
		reason = "filled"
	}
	if _, err := s.plans.Archive(orderID, reason); err != nil {
		return tradeplan.Plan{}, err
	}
	p, _ = s.plans.Get(orderID)

	s.emit(ctx, journal.Decision{
		Time:          s.clock.Now(),
		Kind:          journal.KindFilled,
		Symbol:        p.Symbol,
		Action:        string(p.Action),
		Quantity:      p.Quantity,
		OrderType:     string(p.OrderType),
		Passed:        true,
		BrokerOrderID: orderID,
		Note:          reason,
	})
	return p, nil
}

// Orders lists exchange orders, optionally only working ones and only for symbol.
func (s *SafeExchange) Orders(ctx context.Context, symbol string, openOnly bool) ([]exchange.OrderInfo, error) {
	all, err := s.inner.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := make([]exchange.OrderInfo, 0, len(all))
	for _, o := range all {
		if openOnly && o.Status != exchange.StatusWorking {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *SafeExchange) Order(ctx context.Context, orderID string) (OrderDetail, error) {
	info, err := s.inner.Order(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	detail := OrderDetail{OrderInfo: info}
	if s.plans != nil {
		if p, ok := s.plans.Get(orderID); ok {
			detail.Plan = &p
		}
	}
	return detail, nil
}
