package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/guards"
	"github.com/chidi150c/tradegate/internal/risk"
)

// OrderRequest is the wire form of an order. Action and OrderType accept the
// usual aliases (MKT, LMT, STP, STP_LMT, TRAIL).
type OrderRequest struct {
	Symbol     string           `json:"symbol"`
	Action     string           `json:"action"`
	Quantity   int64            `json:"quantity"`
	OrderType  string           `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// ModifyRequest changes a working order. Omitted fields stay as they are.
type ModifyRequest struct {
	Quantity   *int64           `json:"quantity,omitempty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

type ModifyResponse struct {
	guards.Modification
	Summary string `json:"summary"`
}

type CancelAllResponse struct {
	Cancelled []string `json:"cancelled"`
	Count     int      `json:"count"`
}

type PnLRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	OrderID string          `json:"order_id,omitempty"`
}

// VerdictResponse carries the structured verdict plus its human-readable rendering.
type VerdictResponse struct {
	guards.Verdict
	Summary string `json:"summary"`
}

type PlacementResponse struct {
	guards.Placement
	Summary string `json:"summary"`
}

type LimitsInfo struct {
	MaxOrderValue   string `json:"max_order_value"`
	DailyLossLimit  string `json:"daily_loss_limit"`
	MaxPositionPct  string `json:"max_position_pct"`
	DuplicateWindow string `json:"duplicate_window"`
}

type StateResponse struct {
	risk.DailyState
	DayStart     time.Time  `json:"day_start"`
	NextRollover time.Time  `json:"next_rollover"`
	Limits       LimitsInfo `json:"limits"`
	Breaker      string     `json:"breaker"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSMessage is pushed to websocket subscribers.
type WSMessage struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// WSSubscribeRequest is sent by websocket clients to change subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
