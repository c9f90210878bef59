package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/util"
)

var day1 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestDayManager(t *testing.T) (*DayManager, *util.ManualClock, string) {
	t.Helper()
	dir := t.TempDir()
	clk := util.NewManualClock(day1)
	dm, err := OpenDayManager(dir, WithClock(clk), WithLocation(time.UTC))
	require.NoError(t, err)
	return dm, clk, dir
}

func TestDayManager_FreshWhenMissing(t *testing.T) {
	t.Parallel()

	dm, _, dir := newTestDayManager(t)
	st, err := dm.LoadOrInit()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", st.Date)
	assert.True(t, st.RealizedPnL.IsZero())
	assert.Empty(t, st.RecentOrders)

	// nothing is written until the first mutation
	_, err = os.Stat(filepath.Join(dir, "2024-01-15.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestDayManager_Bounds(t *testing.T) {
	t.Parallel()

	ny := time.FixedZone("EST", -5*3600)
	// 03:00 UTC on the 16th is still the 15th in New York
	clk := util.NewManualClock(time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC))
	dm, err := OpenDayManager(t.TempDir(), WithClock(clk), WithLocation(ny))
	require.NoError(t, err)

	start, next := dm.Bounds()
	assert.True(t, start.Equal(time.Date(2024, 1, 15, 5, 0, 0, 0, time.UTC)))
	assert.True(t, next.Equal(time.Date(2024, 1, 16, 5, 0, 0, 0, time.UTC)))

	clk.Set(next)
	start, _ = dm.Bounds()
	assert.True(t, start.Equal(next))
}

func TestDayManager_RecordPnLPersists(t *testing.T) {
	t.Parallel()

	dm, clk, dir := newTestDayManager(t)
	require.NoError(t, dm.RecordPnL(dec("-500")))
	require.NoError(t, dm.RecordPnL(dec("-600")))

	pnl, err := dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.Equal(dec("-1100")))

	// a new process on the same day sees the same total
	other, err := OpenDayManager(dir, WithClock(clk), WithLocation(time.UTC))
	require.NoError(t, err)
	pnl, err = other.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.Equal(dec("-1100")))
}

func TestDayManager_LossLimitAcrossRecords(t *testing.T) {
	t.Parallel()

	dm, _, _ := newTestDayManager(t)
	require.NoError(t, dm.RecordPnL(dec("-500")))
	require.NoError(t, dm.RecordPnL(dec("-600")))

	e := NewEngine(Limits{DailyLossLimit: FromSentinel(1000)}, 0)
	o := mustOrder(t, "SPY", order.Buy, 1, order.Limit, ptr("1"))
	res := e.Evaluate(Input{Order: o, Account: account("100", "100")}, dm)
	assert.False(t, res.Passed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "daily loss limit reached")
}

func TestDayManager_RecentOrderWindow(t *testing.T) {
	t.Parallel()

	dm, clk, _ := newTestDayManager(t)
	fp := order.Fingerprint("abc")
	require.NoError(t, dm.RecordOrder(fp))

	clk.Advance(59 * time.Second)
	ok, err := dm.HasRecentOrder(fp, 60*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(1 * time.Second)
	ok, err = dm.HasRecentOrder(fp, 60*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// pruned as a side effect
	st, err := dm.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, st.RecentOrders)

	ok, err = dm.HasRecentOrder("other", 60*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDayManager_RecordOrderPrunes(t *testing.T) {
	t.Parallel()

	dm, clk, dir := newTestDayManager(t)
	require.NoError(t, dm.RecordOrder("old"))
	clk.Advance(2 * time.Minute)
	require.NoError(t, dm.RecordOrder("new"))

	st, err := LoadDay(dir, "2024-01-15")
	require.NoError(t, err)
	require.Len(t, st.RecentOrders, 1)
	assert.Equal(t, order.Fingerprint("new"), st.RecentOrders[0].Fingerprint)
	assert.True(t, st.RecentOrders[0].Timestamp.Equal(day1.Add(2*time.Minute)))
}

func TestDayManager_DuplicateScenario(t *testing.T) {
	t.Parallel()

	dm, clk, _ := newTestDayManager(t)
	e := NewEngine(Limits{}, 0)
	o := mustOrder(t, "AAPL", order.Buy, 100, order.Limit, ptr("150"))
	in := Input{Order: o, Account: account("20000", "20000")}

	first := e.Evaluate(in, dm)
	require.True(t, first.Passed)
	require.Empty(t, first.Warnings)
	require.NoError(t, dm.RecordOrder(o.Fingerprint()))

	clk.Advance(10 * time.Second)
	second := e.Evaluate(in, dm)
	assert.True(t, second.Passed)
	require.Len(t, second.Warnings, 1)
	assert.Contains(t, second.Warnings[0], "duplicate order")
}

func TestDayManager_Rollover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yesterday := filepath.Join(dir, "2024-01-14.json")
	require.NoError(t, util.SaveJSON(yesterday, DailyState{
		Date:         "2024-01-14",
		RealizedPnL:  dec("-900"),
		RecentOrders: []OrderStamp{{Fingerprint: "y", Timestamp: day1.Add(-24 * time.Hour)}},
	}))
	before, err := os.ReadFile(yesterday)
	require.NoError(t, err)

	clk := util.NewManualClock(day1.Add(-14 * time.Hour)) // 2024-01-14 20:00
	dm, err := OpenDayManager(dir, WithClock(clk), WithLocation(time.UTC))
	require.NoError(t, err)
	pnl, err := dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.Equal(dec("-900")))

	clk.Set(day1)
	pnl, err = dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.IsZero())

	require.NoError(t, dm.RecordOrder("today"))
	st, err := LoadDay(dir, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", st.Date)
	assert.True(t, st.RealizedPnL.IsZero())
	require.Len(t, st.RecentOrders, 1)

	after, err := os.ReadFile(yesterday)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDayManager_RolloverOnWrite(t *testing.T) {
	t.Parallel()

	dm, clk, _ := newTestDayManager(t)
	require.NoError(t, dm.RecordPnL(dec("-250")))
	require.NoError(t, dm.RecordOrder("fp"))

	clk.Set(day1.Add(24 * time.Hour))
	require.NoError(t, dm.RecordPnL(dec("10")))

	st, err := dm.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-16", st.Date)
	assert.True(t, st.RealizedPnL.Equal(dec("10")))
	assert.Empty(t, st.RecentOrders)
}

func TestDayManager_StaleDateInTodaysFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, util.SaveJSON(filepath.Join(dir, "2024-01-15.json"), DailyState{
		Date: "2023-12-31", RealizedPnL: dec("-42"),
	}))
	dm, err := OpenDayManager(dir, WithClock(util.NewManualClock(day1)), WithLocation(time.UTC))
	require.NoError(t, err)
	pnl, err := dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.IsZero())
}

func TestDayManager_CorruptState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "2024-01-15.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"date":"2024-01-15","realized_pnl":`), 0o600))

	clk := util.NewManualClock(day1)
	dm, err := OpenDayManager(dir, WithClock(clk), WithLocation(time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptState)
	var ce *CorruptStateError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, path, ce.Path)

	// every operation keeps failing loudly until the caller decides
	_, err = dm.DailyPnL()
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.ErrorIs(t, dm.RecordPnL(dec("1")), ErrCorruptState)

	require.NoError(t, dm.StartFresh())
	pnl, err := dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.IsZero())

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestDayManager_PersistFailurePropagates(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "state")
	dm, err := OpenDayManager(dir, WithClock(util.NewManualClock(day1)), WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600)) // a file where the dir should be

	err = dm.RecordPnL(dec("-10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist daily state")

	// in-memory total keeps the loss
	pnl, err := dm.DailyPnL()
	require.NoError(t, err)
	assert.True(t, pnl.Equal(dec("-10")))
}

func TestDayManager_Compact(t *testing.T) {
	t.Parallel()

	dm, clk, dir := newTestDayManager(t)
	require.NoError(t, dm.RecordOrder("a"))
	clk.Advance(time.Minute)
	require.NoError(t, dm.Compact())

	st, err := LoadDay(dir, "2024-01-15")
	require.NoError(t, err)
	assert.Empty(t, st.RecentOrders)
}

func TestDayManager_ConcurrentRecords(t *testing.T) {
	t.Parallel()

	dm, _, dir := newTestDayManager(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, dm.RecordPnL(decimal.NewFromInt(-1)))
		}()
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, dm.RecordOrder(order.Fingerprint(fmt.Sprintf("fp-%d", i%26))))
		}(i)
	}
	wg.Wait()

	st, err := LoadDay(dir, "2024-01-15")
	require.NoError(t, err)
	assert.True(t, st.RealizedPnL.Equal(dec("-50")))
	assert.Len(t, st.RecentOrders, 50)
}

func TestLoadDay_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadDay(t.TempDir(), "2020-01-01")
	assert.ErrorIs(t, err, util.ErrNoFile)
}
