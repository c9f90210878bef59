package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradegate/internal/util"
)

// Times are stored as fixed-width UTC text so that range queries compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a Journal backed by a single database file. A nil *SQLite accepts and
// discards every record.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDecision(ctx context.Context, d Decision) error {
	if j == nil {
		return nil
	}
	if d.ID == "" {
		d.ID = util.NewID()
	}
	errs, err := json.Marshal(nonNil(d.Errors))
	if err != nil {
		return err
	}
	warns, err := json.Marshal(nonNil(d.Warnings))
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO decisions
		(id, time, kind, symbol, action, quantity, order_type, limit_price, stop_price,
		 fingerprint, passed, errors, warnings, broker_order_id, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time.UTC().Format(timeLayout), string(d.Kind), d.Symbol, d.Action, d.Quantity, d.OrderType,
		nullDecimal(d.LimitPrice), nullDecimal(d.StopPrice),
		d.Fingerprint, d.Passed, string(errs), string(warns), d.BrokerOrderID, d.Note,
	)
	return err
}

func (j *SQLite) RecordPnL(ctx context.Context, e PnLEntry) error {
	if j == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = util.NewID()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO pnl (id, time, date, amount, order_id)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC().Format(timeLayout), e.Date, e.Amount.String(), e.OrderID,
	)
	return err
}

func (j *SQLite) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

var _ Journal = (*SQLite)(nil)
