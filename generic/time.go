package generic

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME WINDOW - validated [Start, End) instant pair
// =============================================================================

// TimeWindow is the half-open interval a session occupies.
// INVARIANT: Start < End. Only construct through NewTimeWindow.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow validates start < end.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, NewEngineError(ErrInvariantViolation, "", "window",
			fmt.Sprintf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// MustTimeWindow panics on an invalid window. Use in tests and fixtures only.
func MustTimeWindow(start, end time.Time) TimeWindow {
	w, err := NewTimeWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

func (w TimeWindow) Valid() bool { return w.Start.Before(w.End) }

// Duration is elapsed real time, so DST transitions inside the window count correctly.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Hours returns the elapsed hours as an exact decimal (no rounding).
func (w TimeWindow) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(w.Duration())).Div(decimal.NewFromInt(int64(time.Hour)))
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Shift moves the window, keeping its elapsed duration.
func (w TimeWindow) Shift(d time.Duration) TimeWindow {
	return TimeWindow{Start: w.Start.Add(d), End: w.End.Add(d)}
}

func (w TimeWindow) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// =============================================================================
// DAY SET - set of weekdays (0 = Sunday .. 6 = Saturday)
// =============================================================================

// DaySet is a bitmask of time.Weekday values.
type DaySet uint8

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// DaySetFromInts builds a set from 0..6 integers, rejecting anything else.
func DaySetFromInts(days []int) (DaySet, error) {
	var s DaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, NewEngineError(ErrInvalidRecurrence, "", "days_of_week",
				fmt.Sprintf("weekday %d out of range 0..6", d))
		}
		s = s.Add(time.Weekday(d))
	}
	return s, nil
}

func (s DaySet) Add(d time.Weekday) DaySet { return s | 1<<uint(d) }
func (s DaySet) Has(d time.Weekday) bool   { return s&(1<<uint(d)) != 0 }
func (s DaySet) IsEmpty() bool             { return s&0x7f == 0 }

func (s DaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Ints returns the weekdays as sorted integers (wire representation).
func (s DaySet) Ints() []int {
	out := make([]int, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, int(d))
		}
	}
	return out
}

func (s DaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Ints() {
		names = append(names, time.Weekday(d).String()[:3])
	}
	return strings.Join(names, ",")
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DateKey formats the calendar date of t (in t's location) as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// StartOfDay returns midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func StartOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

// SortCoachIDs sorts in place and drops duplicates.
func SortCoachIDs(ids []CoachID) []CoachID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
