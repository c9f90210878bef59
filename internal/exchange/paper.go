package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/util"
)

type paperPosition struct {
	qty     int64
	avgCost decimal.Decimal
}

type paperOrder struct {
	req    order.Request
	status Status
	fillPx *decimal.Decimal
}

func (o *paperOrder) info(id string) OrderInfo {
	info := OrderInfo{
		OrderID:   id,
		Symbol:    o.req.Symbol(),
		Action:    o.req.Action(),
		OrderType: o.req.Type(),
		Quantity:  o.req.Quantity(),
		Status:    o.status,
		FillPrice: o.fillPx,
	}
	if lp, ok := o.req.LimitPrice(); ok {
		info.LimitPrice = &lp
	}
	if sp, ok := o.req.StopPrice(); ok {
		info.StopPrice = &sp
	}
	return info
}

// Paper is an in-memory exchange for dry runs and tests.
//
// MARKET, STOP and TRAILING orders fill immediately at the last price. LIMIT and
// STOP_LIMIT orders fill at their limit price when marketable against the last price
// and otherwise rest as WORKING until cancelled. Buying power equals cash.
type Paper struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*paperPosition
	prices    map[string]decimal.Decimal
	orders    map[string]*paperOrder
}

func NewPaper(cash decimal.Decimal) *Paper {
	return &Paper{
		cash:      cash,
		positions: make(map[string]*paperPosition),
		prices:    make(map[string]decimal.Decimal),
		orders:    make(map[string]*paperOrder),
	}
}

// SetPrice updates the last traded price of symbol.
func (p *Paper) SetPrice(symbol string, px decimal.Decimal) {
	p.mu.Lock()
	p.prices[symbol] = px
	p.mu.Unlock()
}

// SetPosition seeds a holding at the given average cost.
func (p *Paper) SetPosition(symbol string, qty int64, avgCost decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if qty <= 0 {
		delete(p.positions, symbol)
		return
	}
	p.positions[symbol] = &paperPosition{qty: qty, avgCost: avgCost}
}

func (p *Paper) Account(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	nlv := p.cash
	for sym, pos := range p.positions {
		px, ok := p.prices[sym]
		if !ok {
			px = pos.avgCost
		}
		nlv = nlv.Add(px.Mul(decimal.NewFromInt(pos.qty)))
	}
	return Account{Cash: p.cash, BuyingPower: p.cash, NetLiquidation: nlv}, nil
}

func (p *Paper) Positions(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos.qty
	}
	return out, nil
}

func (p *Paper) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	px, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	return px, nil
}

func (p *Paper) Submit(ctx context.Context, req order.Request) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last, haveLast := p.prices[req.Symbol()]
	id := util.NewID()

	var fillPx decimal.Decimal
	if limit, ok := req.LimitPrice(); ok {
		marketable := haveLast && ((req.Action() == order.Buy && limit.GreaterThanOrEqual(last)) ||
			(req.Action() == order.Sell && limit.LessThanOrEqual(last)))
		if !marketable {
			p.orders[id] = &paperOrder{req: req, status: StatusWorking}
			return Ack{OrderID: id, Status: StatusWorking}, nil
		}
		fillPx = limit
	} else {
		if !haveLast {
			return Ack{}, fmt.Errorf("%w for %s", ErrNoPrice, req.Symbol())
		}
		fillPx = last
	}

	ack, err := p.fillLocked(req, fillPx)
	if err != nil {
		return Ack{}, err
	}
	ack.OrderID = id
	p.orders[id] = &paperOrder{req: req, status: StatusFilled, fillPx: &fillPx}
	return ack, nil
}

func (p *Paper) fillLocked(req order.Request, px decimal.Decimal) (Ack, error) {
	qty := decimal.NewFromInt(req.Quantity())
	notional := px.Mul(qty)
	pos := p.positions[req.Symbol()]

	switch req.Action() {
	case order.Buy:
		if notional.GreaterThan(p.cash) {
			return Ack{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, notional.StringFixed(2), p.cash.StringFixed(2))
		}
		p.cash = p.cash.Sub(notional)
		if pos == nil {
			p.positions[req.Symbol()] = &paperPosition{qty: req.Quantity(), avgCost: px}
		} else {
			total := pos.avgCost.Mul(decimal.NewFromInt(pos.qty)).Add(notional)
			pos.qty += req.Quantity()
			pos.avgCost = total.Div(decimal.NewFromInt(pos.qty))
		}
		return Ack{Status: StatusFilled, FillPrice: px}, nil

	default:
		if pos == nil || pos.qty < req.Quantity() {
			return Ack{}, fmt.Errorf("%w in %s", ErrInsufficientPosition, req.Symbol())
		}
		pnl := px.Sub(pos.avgCost).Mul(qty)
		p.cash = p.cash.Add(notional)
		pos.qty -= req.Quantity()
		if pos.qty == 0 {
			delete(p.positions, req.Symbol())
		}
		return Ack{Status: StatusFilled, FillPrice: px, RealizedPnL: &pnl}, nil
	}
}

func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.status != StatusWorking {
		return fmt.Errorf("%w: %s is %s", ErrNotCancelable, orderID, o.status)
	}
	o.status = StatusCancelled
	return nil
}

// Modify replaces a working order's request. The order keeps resting; a
// modification never fills it.
func (p *Paper) Modify(ctx context.Context, orderID string, req order.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.status != StatusWorking {
		return fmt.Errorf("%w: %s is %s", ErrNotModifiable, orderID, o.status)
	}
	if req.Symbol() != o.req.Symbol() || req.Action() != o.req.Action() || req.Type() != o.req.Type() {
		return fmt.Errorf("%w: %s symbol, action and type are fixed", ErrNotModifiable, orderID)
	}
	o.req = req
	return nil
}

func (p *Paper) CancelAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, o := range p.orders {
		if o.status == StatusWorking {
			o.status = StatusCancelled
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *Paper) Order(ctx context.Context, orderID string) (OrderInfo, error) {
	if err := ctx.Err(); err != nil {
		return OrderInfo{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderInfo{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return o.info(orderID), nil
}

// Orders returns every order, oldest first (ids are ULIDs).
func (p *Paper) Orders(ctx context.Context) ([]OrderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderInfo, 0, len(p.orders))
	for id, o := range p.orders {
		out = append(out, o.info(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

var _ Exchange = (*Paper)(nil)
