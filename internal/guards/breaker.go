package guards

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerHalfOpen:
		return "half_open"
	case breakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// breaker trips after threshold consecutive submit failures, stays open for
// cooldown, then lets up to halfMax trial submissions through.
type breaker struct {
	mu         sync.Mutex
	state      breakerState
	failStreak int
	threshold  int
	cooldown   time.Duration
	openedAt   time.Time
	halfTrials int
	halfMax    int
}

func newBreaker(threshold int, cooldown time.Duration, halfMax int) *breaker {
	if threshold < 1 {
		threshold = 3
	}
	if halfMax < 1 {
		halfMax = 1
	}
	return &breaker{state: breakerClosed, threshold: threshold, cooldown: cooldown, halfMax: halfMax}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow reserves a submission slot. In half-open it takes one of halfMax trials
// and reports trial=true; the caller hands it back with release if nothing was
// submitted.
func (b *breaker) allow(now time.Time) (trial, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return false, true
	case breakerOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.setLocked(breakerHalfOpen)
		b.halfTrials = 0
	}
	if b.state == breakerHalfOpen && b.halfTrials < b.halfMax {
		b.halfTrials++
		return true, true
	}
	return false, false
}

// release returns an unused trial.
func (b *breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	if b.state == breakerHalfOpen && b.halfTrials > 0 {
		b.halfTrials--
	}
	b.mu.Unlock()
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failStreak = 0
	if b.state == breakerHalfOpen {
		b.setLocked(breakerClosed)
	}
}

func (b *breaker) failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failStreak++
		if b.failStreak >= b.threshold {
			b.openedAt = now
			b.setLocked(breakerOpen)
		}
	case breakerHalfOpen:
		b.openedAt = now
		b.failStreak = b.threshold
		b.setLocked(breakerOpen)
	case breakerOpen:
		b.openedAt = now
	}
}

func (b *breaker) setLocked(s breakerState) {
	b.state = s
	metricBreakerState.Set(float64(s))
}

// rateWindow is a sliding one-minute count of submissions. perMinute <= 0 disables it.
type rateWindow struct {
	mu        sync.Mutex
	times     []time.Time
	perMinute int
}

// reserve takes a slot in the window, or reports false when it is full.
func (r *rateWindow) reserve(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(now)
	if r.perMinute > 0 && len(r.times) >= r.perMinute {
		return false
	}
	r.times = append(r.times, now)
	metricRateWindow.Set(float64(len(r.times)))
	return true
}

// release gives back a slot taken at stamp that was not used.
func (r *rateWindow) release(stamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.times) - 1; i >= 0; i-- {
		if r.times[i].Equal(stamp) {
			r.times = append(r.times[:i], r.times[i+1:]...)
			break
		}
	}
	metricRateWindow.Set(float64(len(r.times)))
}

func (r *rateWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	j := 0
	for _, t := range r.times {
		if t.After(cutoff) {
			r.times[j] = t
			j++
		}
	}
	r.times = r.times[:j]
	metricRateWindow.Set(float64(len(r.times)))
}
