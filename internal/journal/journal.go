// Package journal keeps an append-only audit trail of gateway decisions and
// realized P&L in SQLite. It is never consulted by the risk checks.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPreview Kind = "preview"
	KindPlaced  Kind = "placed"
	KindBlocked Kind = "blocked"
	KindFailed  Kind = "failed"
	KindCancel  Kind = "cancel"
	KindModify  Kind = "modify"
	KindFilled  Kind = "filled"
)

// Decision is one evaluated (and possibly submitted) order.
type Decision struct {
	ID            string           `json:"id"`
	Time          time.Time        `json:"time"`
	Kind          Kind             `json:"kind"`
	Symbol        string           `json:"symbol"`
	Action        string           `json:"action"`
	Quantity      int64            `json:"quantity"`
	OrderType     string           `json:"order_type"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	Fingerprint   string           `json:"fingerprint"`
	Passed        bool             `json:"passed"`
	Errors        []string         `json:"errors"`
	Warnings      []string         `json:"warnings"`
	BrokerOrderID string           `json:"broker_order_id,omitempty"`
	Note          string           `json:"note,omitempty"`
}

type PnLEntry struct {
	ID      string          `json:"id"`
	Time    time.Time       `json:"time"`
	Date    string          `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	OrderID string          `json:"order_id,omitempty"`
}

type Journal interface {
	RecordDecision(ctx context.Context, d Decision) error
	RecordPnL(ctx context.Context, e PnLEntry) error
	Close() error
}
