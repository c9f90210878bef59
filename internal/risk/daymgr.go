package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chidi150c/tradegate/internal/order"
	"github.com/chidi150c/tradegate/internal/util"
)

// ErrCorruptState matches any *CorruptStateError via errors.Is.
var ErrCorruptState = errors.New("corrupt daily state")

// CorruptStateError reports a day record that exists but cannot be parsed.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt daily state %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error        { return e.Err }
func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// DayManager owns the daily trading state: one JSON record per calendar date under Dir.
// Every access compares the record's date with the clock and rolls over to a fresh
// record when they differ. All operations, reads included, run under one mutex.
type DayManager struct {
	dir    string
	loc    *time.Location
	clock  util.Clock
	window time.Duration
	log    *zap.Logger

	mu     sync.Mutex
	state  DailyState
	loaded bool
}

type DayOption func(*DayManager)

func WithClock(c util.Clock) DayOption        { return func(dm *DayManager) { dm.clock = c } }
func WithLocation(l *time.Location) DayOption { return func(dm *DayManager) { dm.loc = l } }
func WithWindow(d time.Duration) DayOption    { return func(dm *DayManager) { dm.window = d } }
func WithDayLogger(l *zap.Logger) DayOption   { return func(dm *DayManager) { dm.log = l } }

func NewDayManager(dir string, opts ...DayOption) *DayManager {
	dm := &DayManager{
		dir:    dir,
		loc:    time.Local,
		clock:  util.RealClock{},
		window: DefaultDuplicateWindow,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(dm)
	}
	if dm.window <= 0 {
		dm.window = DefaultDuplicateWindow
	}
	if dm.log == nil {
		dm.log = zap.NewNop()
	}
	return dm
}

// OpenDayManager builds a DayManager and loads today's record. A corrupt record is
// returned as *CorruptStateError together with the (unloaded) manager so the caller
// can decide between aborting and StartFresh.
func OpenDayManager(dir string, opts ...DayOption) (*DayManager, error) {
	dm := NewDayManager(dir, opts...)
	if _, err := dm.LoadOrInit(); err != nil {
		return dm, err
	}
	return dm, nil
}

// Path returns the record path for a YYYY-MM-DD date.
func (dm *DayManager) Path(date string) string { return filepath.Join(dm.dir, date+".json") }

func (dm *DayManager) Dir() string              { return dm.dir }
func (dm *DayManager) Window() time.Duration    { return dm.window }
func (dm *DayManager) Location() *time.Location { return dm.loc }

func (dm *DayManager) today() string { return util.DateKey(dm.loc, dm.clock.Now()) }

// Bounds returns the start of the current trading day and the next rollover.
func (dm *DayManager) Bounds() (start, next time.Time) {
	now := dm.clock.Now()
	return util.TodayOpen(dm.loc, now), util.NextOpen(dm.loc, now)
}

// LoadOrInit (re)reads today's record from disk. A missing record, or one whose date
// is not today, yields a fresh zero state.
func (dm *DayManager) LoadOrInit() (DailyState, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.loadLocked(dm.today()); err != nil {
		return DailyState{}, err
	}
	return dm.state.clone(), nil
}

// StartFresh discards an unreadable record for today: the file is moved aside
// (suffix .corrupt-<unix>) and an empty state takes its place.
func (dm *DayManager) StartFresh() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	today := dm.today()
	path := dm.Path(today)
	if _, err := os.Stat(path); err == nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, dm.clock.Now().Unix())
		if err := os.Rename(path, aside); err != nil {
			return fmt.Errorf("move corrupt state aside: %w", err)
		}
		dm.log.Warn("daily state discarded, starting fresh", zap.String("path", path), zap.String("moved_to", aside))
	}
	dm.state = freshState(today)
	dm.loaded = true
	return nil
}

func freshState(date string) DailyState {
	return DailyState{Date: date, RealizedPnL: decimal.Zero, RecentOrders: []OrderStamp{}}
}

func (dm *DayManager) loadLocked(today string) error {
	path := dm.Path(today)
	var s DailyState
	err := util.LoadJSON(path, &s)
	switch {
	case errors.Is(err, util.ErrNoFile):
		dm.state = freshState(today)
		dm.log.Info("daily state initialized", zap.String("date", today))
	case errors.Is(err, util.ErrDecode):
		dm.loaded = false
		return &CorruptStateError{Path: path, Err: err}
	case err != nil:
		dm.loaded = false
		return fmt.Errorf("read daily state: %w", err)
	case s.Date != today:
		dm.state = freshState(today)
		dm.log.Warn("daily state record has mismatched date, starting fresh",
			zap.String("path", path), zap.String("record_date", s.Date))
	default:
		if s.RecentOrders == nil {
			s.RecentOrders = []OrderStamp{}
		}
		dm.state = s
		dm.log.Info("daily state loaded", zap.String("date", today),
			zap.String("realized_pnl", s.RealizedPnL.String()), zap.Int("recent_orders", len(s.RecentOrders)))
	}
	dm.loaded = true
	return nil
}

// ensureTodayLocked performs the rollover check that precedes every operation.
func (dm *DayManager) ensureTodayLocked() error {
	today := dm.today()
	if dm.loaded && dm.state.Date == today {
		return nil
	}
	if dm.loaded {
		dm.log.Info("trading day rollover", zap.String("from", dm.state.Date), zap.String("to", today),
			zap.String("closing_pnl", dm.state.RealizedPnL.String()))
	}
	return dm.loadLocked(today)
}

func (dm *DayManager) persistLocked() error {
	if err := util.SaveJSON(dm.Path(dm.state.Date), dm.state); err != nil {
		dm.log.Error("persist daily state failed", zap.String("date", dm.state.Date), zap.Error(err))
		return fmt.Errorf("persist daily state: %w", err)
	}
	return nil
}

// pruneLocked drops fingerprints recorded window or more before now.
func (dm *DayManager) pruneLocked(now time.Time, window time.Duration) int {
	kept := dm.state.RecentOrders[:0]
	for _, st := range dm.state.RecentOrders {
		if now.Sub(st.Timestamp) < window {
			kept = append(kept, st)
		}
	}
	dropped := len(dm.state.RecentOrders) - len(kept)
	dm.state.RecentOrders = kept
	return dropped
}

// RecordPnL adds amount (negative for a loss) to today's realized P&L and persists.
// On a persist failure the in-memory total keeps the amount, so loss limits in this
// process stay conservative; the error tells the caller the disk copy is behind.
func (dm *DayManager) RecordPnL(amount decimal.Decimal) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return err
	}
	dm.state.RealizedPnL = dm.state.RealizedPnL.Add(amount)
	return dm.persistLocked()
}

// RecordOrder stamps fp with the current time, prunes stale entries and persists.
func (dm *DayManager) RecordOrder(fp order.Fingerprint) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return err
	}
	now := dm.clock.Now()
	dm.state.RecentOrders = append(dm.state.RecentOrders, OrderStamp{Fingerprint: fp, Timestamp: now})
	dm.pruneLocked(now, dm.window)
	return dm.persistLocked()
}

// HasRecentOrder reports whether fp was recorded less than window ago.
// Stale entries are pruned from memory as a side effect; the next write persists the
// compacted list.
func (dm *DayManager) HasRecentOrder(fp order.Fingerprint, window time.Duration) (bool, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return false, err
	}
	dm.pruneLocked(dm.clock.Now(), window)
	for _, st := range dm.state.RecentOrders {
		if st.Fingerprint == fp {
			return true, nil
		}
	}
	return false, nil
}

// DailyPnL returns today's realized P&L; 0 on the first access of a new day.
func (dm *DayManager) DailyPnL() (decimal.Decimal, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return decimal.Zero, err
	}
	return dm.state.RealizedPnL, nil
}

// Snapshot returns a copy of today's state.
func (dm *DayManager) Snapshot() (DailyState, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return DailyState{}, err
	}
	return dm.state.clone(), nil
}

// Compact prunes stale fingerprints using the configured window and persists.
func (dm *DayManager) Compact() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.ensureTodayLocked(); err != nil {
		return err
	}
	if n := dm.pruneLocked(dm.clock.Now(), dm.window); n > 0 {
		dm.log.Debug("compacted recent orders", zap.Int("dropped", n))
	}
	return dm.persistLocked()
}

// LoadDay reads the record for any date without touching a running manager.
// Used by inspection tooling; the gateway itself only ever loads today.
func LoadDay(dir, date string) (DailyState, error) {
	path := filepath.Join(dir, date+".json")
	var s DailyState
	if err := util.LoadJSON(path, &s); err != nil {
		if errors.Is(err, util.ErrDecode) {
			return DailyState{}, &CorruptStateError{Path: path, Err: err}
		}
		return DailyState{}, err
	}
	return s, nil
}
