package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal", "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('decisions','pnl')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())
	assert.True(t, found["decisions"])
	assert.True(t, found["pnl"])
}

func TestSQLiteDecisionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	base := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	lp := decimal.RequireFromString("150.25")

	require.NoError(t, j.RecordDecision(ctx, Decision{
		Time:        base,
		Kind:        KindBlocked,
		Symbol:      "AAPL",
		Action:      "BUY",
		Quantity:    100,
		OrderType:   "LIMIT",
		LimitPrice:  &lp,
		Fingerprint: "abc",
		Passed:      false,
		Errors:      []string{"max order value exceeded: $15,025.00 > limit $10,000.00"},
	}))
	require.NoError(t, j.RecordDecision(ctx, Decision{
		Time:          base.Add(time.Minute),
		Kind:          KindPlaced,
		Symbol:        "MSFT",
		Action:        "SELL",
		Quantity:      5,
		OrderType:     "MARKET",
		Fingerprint:   "def",
		Passed:        true,
		Warnings:      []string{"order value unknown"},
		BrokerOrderID: "42",
	}))

	all, err := j.ListDecisions(ctx, base.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	first := all[0]
	assert.NotEmpty(t, first.ID)
	assert.True(t, first.Time.Equal(base))
	assert.Equal(t, KindBlocked, first.Kind)
	require.NotNil(t, first.LimitPrice)
	assert.True(t, first.LimitPrice.Equal(lp))
	assert.Nil(t, first.StopPrice)
	assert.False(t, first.Passed)
	assert.Len(t, first.Errors, 1)
	assert.Empty(t, first.Warnings)

	second := all[1]
	assert.True(t, second.Passed)
	assert.Equal(t, "42", second.BrokerOrderID)
	assert.Equal(t, []string{"order value unknown"}, second.Warnings)

	later, err := j.ListDecisions(ctx, base.Add(30*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "MSFT", later[0].Symbol)

	limited, err := j.ListDecisions(ctx, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteDailyPnL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	now := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	for _, e := range []PnLEntry{
		{Time: now, Date: "2024-01-15", Amount: decimal.RequireFromString("-500")},
		{Time: now, Date: "2024-01-15", Amount: decimal.RequireFromString("-600.10")},
		{Time: now, Date: "2024-01-14", Amount: decimal.RequireFromString("999")},
	} {
		require.NoError(t, j.RecordPnL(ctx, e))
	}

	total, err := j.DailyPnL(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("-1100.10")), total.String())

	none, err := j.DailyPnL(ctx, "2023-12-31")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestNilSQLiteIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var j *SQLite
	assert.NoError(t, j.RecordDecision(ctx, Decision{}))
	assert.NoError(t, j.RecordPnL(ctx, PnLEntry{}))
	ds, err := j.ListDecisions(ctx, time.Time{}, 0)
	assert.NoError(t, err)
	assert.Nil(t, ds)
	assert.NoError(t, j.Close())
}
