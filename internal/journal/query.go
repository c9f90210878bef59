package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ListDecisions returns decisions recorded at or after since, oldest first.
// limit <= 0 means no limit.
func (j *SQLite) ListDecisions(ctx context.Context, since time.Time, limit int) ([]Decision, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, time, kind, symbol, action, quantity, order_type, limit_price, stop_price,
		       fingerprint, passed, errors, warnings, broker_order_id, note
		FROM decisions
		WHERE time >= ?
		ORDER BY time ASC, id ASC
		LIMIT ?`, since.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d           Decision
			ts, kind    string
			limitPx     decimal.NullDecimal
			stopPx      decimal.NullDecimal
			errs, warns string
		)
		if err := rows.Scan(
			&d.ID, &ts, &kind, &d.Symbol, &d.Action, &d.Quantity, &d.OrderType,
			&limitPx, &stopPx, &d.Fingerprint, &d.Passed, &errs, &warns,
			&d.BrokerOrderID, &d.Note,
		); err != nil {
			return nil, err
		}
		if d.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
		d.Kind = Kind(kind)
		if limitPx.Valid {
			v := limitPx.Decimal
			d.LimitPrice = &v
		}
		if stopPx.Valid {
			v := stopPx.Decimal
			d.StopPrice = &v
		}
		if err := json.Unmarshal([]byte(errs), &d.Errors); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(warns), &d.Warnings); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DailyPnL sums the journaled P&L entries for a YYYY-MM-DD date.
func (j *SQLite) DailyPnL(ctx context.Context, date string) (decimal.Decimal, error) {
	if j == nil {
		return decimal.Zero, nil
	}
	rows, err := j.db.QueryContext(ctx, `SELECT amount FROM pnl WHERE date = ?`, date)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amt decimal.Decimal
		if err := rows.Scan(&amt); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amt)
	}
	return total, rows.Err()
}
