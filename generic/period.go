package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// HORIZON - the date range recurrence is expanded over
// =============================================================================

// Horizon is the half-open range [From, To) over which a template is expanded.
// Only the calendar dates matter: every date d with From's date <= d < To is a
// candidate occurrence.
type Horizon struct {
	From time.Time
	To   time.Time
}

// NewHorizon returns the horizon starting at from and spanning days calendar days.
func NewHorizon(from time.Time, days int) Horizon {
	return Horizon{From: from, To: from.AddDate(0, 0, days)}
}

func (h Horizon) Validate() error {
	if !h.From.Before(h.To) {
		return NewEngineError(ErrInvalidRecurrence, "", "horizon",
			fmt.Sprintf("from %s must be before to %s", h.From.Format(time.RFC3339), h.To.Format(time.RFC3339)))
	}
	return nil
}

// Dates returns midnight of every calendar date in the horizon, in loc.
func (h Horizon) Dates(loc *time.Location) []time.Time {
	var dates []time.Time
	end := h.To.In(loc)
	for d := StartOfDay(h.From, loc); d.Before(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Days returns the number of calendar dates covered, in loc.
func (h Horizon) Days(loc *time.Location) int {
	n := 0
	end := h.To.In(loc)
	for d := StartOfDay(h.From, loc); d.Before(end); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func (h Horizon) String() string {
	return "[" + DateKey(h.From) + ", " + DateKey(h.To) + ")"
}

// NextHorizon returns the horizon immediately following this one with the same span.
func (h Horizon) NextHorizon() Horizon {
	return Horizon{From: h.To, To: h.To.Add(h.To.Sub(h.From))}
}
