package util

import "time"

// DateLayout is the calendar-date format used to name day-scoped records.
const DateLayout = "2006-01-02"

// LoadLocation resolves tz, falling back to the process-local zone for "" or "Local"
// and to UTC for unknown names.
func LoadLocation(tz string) *time.Location {
	if tz == "" || tz == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TodayOpen returns the local midnight (00:00) for `now` in loc.
func TodayOpen(loc *time.Location, now time.Time) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextOpen returns the next local midnight after `now` in loc.
func NextOpen(loc *time.Location, now time.Time) time.Time {
	return TodayOpen(loc, now).AddDate(0, 0, 1)
}

// DateKey returns the calendar date of `now` in loc, e.g. "2024-01-15".
func DateKey(loc *time.Location, now time.Time) string {
	return now.In(loc).Format(DateLayout)
}

// SameTradingDay checks if a and b are on the same local day in loc.
func SameTradingDay(loc *time.Location, a, b time.Time) bool {
	return TodayOpen(loc, a).Equal(TodayOpen(loc, b))
}
