/*
Package schedule expands recurring sessions and mutates session membership.

PURPOSE:
  Two pure components live here:
    - Expander: turns a template Session into concrete instances
    - Ledger:   adds and removes coaches and students on a Session

  Neither touches storage. coaching.Service loads aggregates, calls these
  functions, and persists the results in one transaction.

EXPANSION RULES (recurrence.go):
  For a template with time-of-day T, elapsed duration D and day set W, and a
  horizon [from, to):
    - one instance per calendar date d in [from, to) with weekday(d) in W
    - instance start = date d at time-of-day T in the expander's location
    - instance end   = start + D (elapsed, so DST never changes the length)
    - name, description, coaches and capacity are copied
    - instance id    = UUIDv5(template id, d), so re-expansion yields the same ids

IDEMPOTENCE:
  Expansion never writes. Each Occurrence reports whether an instance for
  (template, date) already exists, looked up in the caller's ExistingIndex.
  The caller persists only the new ones.

SEE ALSO:
  - ledger.go: Coach and student mutations
  - coaching/service.go: ExpandTemplate persists the sequence
*/
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/coaching-engine/generic"
)

// MaxHorizonDays bounds a single expansion (two years, leap day included).
const MaxHorizonDays = 731

var occurrenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:coaching-engine:occurrence"))

// OccurrenceID is the deterministic id of the instance of templateID on date.
func OccurrenceID(templateID generic.SessionID, date string) generic.SessionID {
	return generic.SessionID(uuid.NewSHA1(occurrenceNamespace, []byte(generic.OccurrenceKey(templateID, date))).String())
}

// =============================================================================
// EXISTING INDEX - what has already been persisted
// =============================================================================

// ExistingIndex answers "is there already an instance of template on date?".
type ExistingIndex interface {
	Lookup(templateID generic.SessionID, date string) (generic.SessionID, bool)
}

// IndexSet is a map-backed ExistingIndex keyed by generic.OccurrenceKey.
type IndexSet map[string]generic.SessionID

// NewIndex indexes the instances among sessions.
func NewIndex(sessions []*generic.Session) IndexSet {
	idx := make(IndexSet, len(sessions))
	for _, s := range sessions {
		if key := s.OccurrenceKey(); key != "" {
			idx[key] = s.ID
		}
	}
	return idx
}

func (idx IndexSet) Lookup(templateID generic.SessionID, date string) (generic.SessionID, bool) {
	id, ok := idx[generic.OccurrenceKey(templateID, date)]
	return id, ok
}

// =============================================================================
// EXPANDER
// =============================================================================

type Expander struct {
	loc *time.Location
}

// NewExpander returns an expander that reads calendar dates and time of day
// in loc. A nil loc means UTC.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{loc: loc}
}

func (e *Expander) Location() *time.Location { return e.loc }

// Occurrence is one matching date of a template.
type Occurrence struct {
	Date       string
	Session    *generic.Session // the instance to persist when Exists is false
	Exists     bool
	ExistingID generic.SessionID
}

// Expand validates the template and horizon and returns a lazy sequence.
// A nil existing index is treated as empty.
func (e *Expander) Expand(template *generic.Session, horizon generic.Horizon, existing ExistingIndex) (*Sequence, error) {
	if err := e.validate(template, horizon); err != nil {
		return nil, err
	}
	if existing == nil {
		existing = IndexSet{}
	}

	tplStart := template.Window.Start.In(e.loc)
	seq := &Sequence{
		template: template.Clone(),
		existing: existing,
		loc:      e.loc,
		first:    generic.StartOfDay(horizon.From, e.loc),
		end:      horizon.To.In(e.loc),
		duration: template.Window.Duration(),
		hour:     tplStart.Hour(),
		min:      tplStart.Minute(),
		sec:      tplStart.Second(),
		nsec:     tplStart.Nanosecond(),
	}
	seq.Reset()
	return seq, nil
}

func (e *Expander) validate(template *generic.Session, horizon generic.Horizon) error {
	id := string(template.ID)
	if !template.IsActiveTemplate() {
		return generic.NewEngineError(generic.ErrInvalidRecurrence, id, "recurrence", "session has no active recurrence")
	}
	if template.Recurrence.Days.IsEmpty() {
		return generic.NewEngineError(generic.ErrInvalidRecurrence, id, "days_of_week", "day set is empty")
	}
	if template.Window.Duration() <= 0 {
		return generic.NewEngineError(generic.ErrInvalidRecurrence, id, "window", "template duration must be positive")
	}
	if err := horizon.Validate(); err != nil {
		return err
	}
	if days := horizon.Days(e.loc); days > MaxHorizonDays {
		return generic.NewEngineError(generic.ErrInvalidRecurrence, id, "horizon",
			fmt.Sprintf("horizon spans %d days, max is %d", days, MaxHorizonDays))
	}
	return nil
}

// =============================================================================
// SEQUENCE - lazy, finite, restartable
// =============================================================================

type Sequence struct {
	template *generic.Session
	existing ExistingIndex
	loc      *time.Location

	first    time.Time
	end      time.Time
	duration time.Duration

	hour, min, sec, nsec int

	cursor time.Time
}

// Reset rewinds the sequence to the first date of the horizon.
func (s *Sequence) Reset() { s.cursor = s.first }

// Next returns the next matching occurrence, or false when the horizon is exhausted.
func (s *Sequence) Next() (Occurrence, bool) {
	for s.cursor.Before(s.end) {
		day := s.cursor
		s.cursor = s.cursor.AddDate(0, 0, 1)
		if !s.template.Recurrence.Days.Has(day.Weekday()) {
			continue
		}
		return s.occurrence(day), true
	}
	return Occurrence{}, false
}

// Collect drains the sequence, checking ctx between dates.
func (s *Sequence) Collect(ctx context.Context) ([]Occurrence, error) {
	var out []Occurrence
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		occ, ok := s.Next()
		if !ok {
			return out, nil
		}
		out = append(out, occ)
	}
}

func (s *Sequence) occurrence(day time.Time) Occurrence {
	date := generic.DateKey(day)
	if id, ok := s.existing.Lookup(s.template.ID, date); ok {
		return Occurrence{Date: date, Exists: true, ExistingID: id}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), s.hour, s.min, s.sec, s.nsec, s.loc)
	tpl := s.template
	inst := &generic.Session{
		ID:             OccurrenceID(tpl.ID, date),
		Name:           tpl.Name,
		Description:    tpl.Description,
		Window:         generic.TimeWindow{Start: start, End: start.Add(s.duration)},
		Coaches:        append([]generic.CoachID(nil), tpl.Coaches...),
		TemplateID:     tpl.ID,
		OccurrenceDate: date,
		MaxStudents:    tpl.MaxStudents,
		Paid:           true,
	}
	return Occurrence{Date: date, Session: inst}
}
