package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/schedule"
)

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func template(days ...time.Weekday) *generic.Session {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &generic.Session{
		ID:          "tpl-1",
		Name:        "Footwork",
		Window:      generic.MustTimeWindow(start, start.Add(90*time.Minute)),
		Coaches:     []generic.CoachID{"coach-a"},
		Recurrence:  &generic.Recurrence{Days: generic.NewDaySet(days...), Active: true},
		MaxStudents: 4,
	}
}

func collect(t *testing.T, seq *schedule.Sequence) []schedule.Occurrence {
	t.Helper()
	occ, err := seq.Collect(context.Background())
	require.NoError(t, err)
	return occ
}

func TestExpand_MonWedFriOverTwoWeeks(t *testing.T) {
	// GIVEN: a Mon/Wed/Fri template
	tpl := template(time.Monday, time.Wednesday, time.Friday)

	// WHEN: expanded over two weeks starting on a Monday
	seq, err := schedule.NewExpander(time.UTC).Expand(tpl, generic.NewHorizon(monday, 14), nil)
	require.NoError(t, err)
	occ := collect(t, seq)

	// THEN: 6 instances on the expected dates
	require.Len(t, occ, 6)
	var dates []string
	for _, o := range occ {
		dates = append(dates, o.Date)
		assert.False(t, o.Exists)
		assert.Equal(t, 90*time.Minute, o.Session.Window.Duration())
		assert.Equal(t, 9, o.Session.Window.Start.Hour())
		assert.Equal(t, generic.SessionID("tpl-1"), o.Session.TemplateID)
		assert.Equal(t, []generic.CoachID{"coach-a"}, o.Session.Coaches)
		assert.Equal(t, 4, o.Session.MaxStudents)
		assert.Nil(t, o.Session.Recurrence)
	}
	assert.Equal(t, []string{
		"2025-03-03", "2025-03-05", "2025-03-07",
		"2025-03-10", "2025-03-12", "2025-03-14",
	}, dates)
}

func TestExpand_IsIdempotent(t *testing.T) {
	tpl := template(time.Monday, time.Wednesday, time.Friday)
	exp := schedule.NewExpander(time.UTC)
	horizon := generic.NewHorizon(monday, 14)

	// GIVEN: a first expansion, all of it persisted
	seq, err := exp.Expand(tpl, horizon, nil)
	require.NoError(t, err)
	first := collect(t, seq)
	var persisted []*generic.Session
	for _, o := range first {
		persisted = append(persisted, o.Session)
	}

	// WHEN: expanded again with the persisted instances as the index
	seq, err = exp.Expand(tpl, horizon, schedule.NewIndex(persisted))
	require.NoError(t, err)
	second := collect(t, seq)

	// THEN: every occurrence already exists, with the same ids
	require.Len(t, second, len(first))
	for i, o := range second {
		assert.True(t, o.Exists)
		assert.Nil(t, o.Session)
		assert.Equal(t, first[i].Session.ID, o.ExistingID)
	}
}

func TestExpand_DeterministicIDs(t *testing.T) {
	tpl := template(time.Monday)
	exp := schedule.NewExpander(time.UTC)

	a, err := exp.Expand(tpl, generic.NewHorizon(monday, 7), nil)
	require.NoError(t, err)
	b, err := exp.Expand(tpl, generic.NewHorizon(monday, 7), nil)
	require.NoError(t, err)

	oa, _ := a.Next()
	ob, _ := b.Next()
	assert.Equal(t, oa.Session.ID, ob.Session.ID)
	assert.Equal(t, schedule.OccurrenceID("tpl-1", "2025-03-03"), oa.Session.ID)
}

func TestSequence_ResetRestarts(t *testing.T) {
	seq, err := schedule.NewExpander(time.UTC).Expand(template(time.Monday, time.Tuesday), generic.NewHorizon(monday, 7), nil)
	require.NoError(t, err)

	first, ok := seq.Next()
	require.True(t, ok)
	_, _ = seq.Next()
	_, ok = seq.Next()
	assert.False(t, ok)

	seq.Reset()
	again, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, first.Date, again.Date)
}

func TestExpand_KeepsLocalTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// GIVEN: a daily 09:00-10:30 template in New York
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, loc)
	tpl := template()
	tpl.Window = generic.MustTimeWindow(start, start.Add(90*time.Minute))
	tpl.Recurrence.Days = generic.NewDaySet(time.Saturday, time.Sunday, time.Monday)

	// WHEN: expanded over the spring-forward weekend (2025-03-09)
	from := time.Date(2025, 3, 8, 0, 0, 0, 0, loc)
	seq, err := schedule.NewExpander(loc).Expand(tpl, generic.NewHorizon(from, 3), nil)
	require.NoError(t, err)
	occ := collect(t, seq)

	// THEN: every instance starts at 09:00 local and lasts 90 minutes
	require.Len(t, occ, 3)
	for _, o := range occ {
		local := o.Session.Window.Start.In(loc)
		assert.Equal(t, 9, local.Hour(), o.Date)
		assert.Equal(t, 90*time.Minute, o.Session.Window.Duration(), o.Date)
	}
}

func TestExpand_InvalidRecurrence(t *testing.T) {
	exp := schedule.NewExpander(time.UTC)

	tests := []struct {
		name    string
		tpl     func() *generic.Session
		horizon generic.Horizon
	}{
		{"empty horizon", func() *generic.Session { return template(time.Monday) }, generic.Horizon{From: monday, To: monday}},
		{"empty day set", func() *generic.Session { return template() }, generic.NewHorizon(monday, 7)},
		{"not recurring", func() *generic.Session {
			s := template(time.Monday)
			s.Recurrence = nil
			return s
		}, generic.NewHorizon(monday, 7)},
		{"inactive", func() *generic.Session {
			s := template(time.Monday)
			s.Recurrence.Active = false
			return s
		}, generic.NewHorizon(monday, 7)},
		{"zero duration", func() *generic.Session {
			s := template(time.Monday)
			s.Window.End = s.Window.Start
			return s
		}, generic.NewHorizon(monday, 7)},
		{"horizon too long", func() *generic.Session { return template(time.Monday) }, generic.NewHorizon(monday, schedule.MaxHorizonDays+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exp.Expand(tt.tpl(), tt.horizon, nil)
			assert.True(t, errors.Is(err, generic.ErrInvalidRecurrence), "got %v", err)
		})
	}
}

func TestCollect_HonoursCancellation(t *testing.T) {
	seq, err := schedule.NewExpander(time.UTC).Expand(template(time.Monday), generic.NewHorizon(monday, 28), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	occ, err := seq.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, occ)
}
