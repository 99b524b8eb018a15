package ledger

import "time"

// =============================================================================
// MONTH - Calendar-month bucketing for limit enforcement
// =============================================================================

// Month is the inclusive [Start, End] window of one calendar month in the
// system's canonical timezone. Caps are enforced against the month containing
// a transaction's CreatedAt; there is no rollover mid-transaction.
type Month struct {
	Start time.Time
	End   time.Time
}

// MonthContaining returns the calendar month containing ref, evaluated in
// loc. A nil loc falls back to server-local time, the canonical timezone of
// the surrounding system.
func MonthContaining(ref time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.Local
	}
	ref = ref.In(loc)
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Month{Start: start, End: end}
}

// Contains reports whether t falls within the month window.
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.Start) && !t.After(m.End)
}

// Key returns the month in YYYY-MM form for display and report labels.
func (m Month) Key() string { return m.Start.Format("2006-01") }

// DayContaining returns the inclusive [start, end] window of the calendar
// day containing ref. Used by the today-summary report, which buckets the
// same way the monthly aggregator does.
func DayContaining(ref time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	ref = ref.In(loc)
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
