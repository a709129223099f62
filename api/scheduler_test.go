package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
)

func TestRecurrenceScheduler_RunOnce(t *testing.T) {
	// GIVEN: A Mon/Wed/Fri template, expanded on creation
	ts := setupTestServer(t)
	ts.seedCoaches()
	ctx := context.Background()

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	tpl, err := ts.handler.Service.CreateSession(ctx, generic.SystemPrincipal, factory.CreateSession{
		Name:       "Morning drills",
		Start:      start,
		End:        start.Add(time.Hour),
		Coaches:    []string{"coach-a"},
		Recurring:  true,
		DaysOfWeek: []int{1, 3, 5},
	})
	require.NoError(t, err)

	rs := NewRecurrenceScheduler(ts.handler.Service)

	// WHEN: The scheduler runs over the 14 day horizon
	results := rs.RunOnce(ctx)

	// THEN: Creation already expanded the horizon, so nothing new appears
	require.Len(t, results, 1)
	assert.Equal(t, tpl.ID, results[0].TemplateID)
	assert.Empty(t, results[0].Created)
	assert.Equal(t, 6, results[0].Existing)

	// WHEN: One instance is deleted and the scheduler runs again
	instances, err := ts.handler.Service.ListSessions(ctx, generic.SystemPrincipal, generic.SessionFilter{TemplateID: tpl.ID})
	require.NoError(t, err)
	require.NoError(t, ts.handler.Service.DeleteSession(ctx, generic.SystemPrincipal, instances[0].ID))
	results = rs.RunOnce(ctx)

	// THEN: The missing date is materialized again with its payment
	require.Len(t, results, 1)
	assert.Len(t, results[0].Created, 1)
	assert.Equal(t, 1, results[0].Payments)
}

func TestRecurrenceScheduler_StartStop(t *testing.T) {
	ts := setupTestServer(t)
	rs := NewRecurrenceScheduler(ts.handler.Service)
	rs.CheckInterval = 10 * time.Millisecond

	// Start and Stop can be repeated
	rs.Start()
	rs.Start()
	rs.Stop()
	rs.Start()
	rs.Stop()
	rs.Stop()

	// Disabled scheduler never starts
	rs.Enabled = false
	rs.Start()
	assert.Nil(t, rs.ticker)
}
