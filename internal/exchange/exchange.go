// Package exchange is the brokerage boundary: account and position reads, quotes,
// order submission and cancellation.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/order"
)

var (
	ErrUnknownOrder         = errors.New("unknown order")
	ErrNotCancelable        = errors.New("order is not cancelable")
	ErrNotModifiable        = errors.New("order is not modifiable")
	ErrNoPrice              = errors.New("no price available")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
)

type Account struct {
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	NetLiquidation decimal.Decimal `json:"net_liquidation"`
}

type Status string

const (
	StatusFilled    Status = "FILLED"
	StatusWorking   Status = "WORKING"
	StatusCancelled Status = "CANCELLED"
)

// Ack is the exchange's answer to a submission.
type Ack struct {
	OrderID   string          `json:"order_id"`
	Status    Status          `json:"status"`
	FillPrice decimal.Decimal `json:"fill_price,omitempty"`
	// RealizedPnL is set when the fill closed (part of) a position.
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
}

// OrderInfo is the exchange's record of one order.
type OrderInfo struct {
	OrderID    string           `json:"order_id"`
	Symbol     string           `json:"symbol"`
	Action     order.Action     `json:"action"`
	OrderType  order.Type       `json:"order_type"`
	Quantity   int64            `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
	Status     Status           `json:"status"`
	FillPrice  *decimal.Decimal `json:"fill_price,omitempty"`
}

// Request rebuilds the order as submitted.
func (o OrderInfo) Request() (order.Request, error) {
	return order.New(o.Symbol, o.Action, o.Quantity, o.OrderType, o.LimitPrice, o.StopPrice)
}

type Exchange interface {
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) (map[string]int64, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Submit(ctx context.Context, req order.Request) (Ack, error)
	Cancel(ctx context.Context, orderID string) error

	// Modify replaces the quantity and prices of a working order. Symbol, action
	// and order type cannot change.
	Modify(ctx context.Context, orderID string, req order.Request) error
	// CancelAll cancels every working order and returns their ids.
	CancelAll(ctx context.Context) ([]string, error)
	Order(ctx context.Context, orderID string) (OrderInfo, error)
	// Orders lists every order this session, oldest first.
	Orders(ctx context.Context) ([]OrderInfo, error)
}
