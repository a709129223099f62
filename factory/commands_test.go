package factory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
)

func TestParseCommand_CreateRecurringSession(t *testing.T) {
	// GIVEN: a recurring Mon/Wed/Fri session request
	body := `{
		"type": "create_session",
		"payload": {
			"name": "Footwork",
			"start": "2025-03-03T09:00:00Z",
			"end": "2025-03-03T10:30:00Z",
			"coaches": ["coach-b", "coach-a"],
			"recurring": true,
			"days_of_week": [1, 3, 5]
		}
	}`

	// WHEN
	cmd, err := factory.ParseCommand([]byte(body))
	require.NoError(t, err)

	// THEN: it builds a template with sorted coaches and the default capacity
	create, ok := cmd.(*factory.CreateSession)
	require.True(t, ok)
	s, err := create.Build("tpl-1", time.Now())
	require.NoError(t, err)

	assert.True(t, s.IsActiveTemplate())
	assert.Equal(t, []int{1, 3, 5}, s.Recurrence.Days.Ints())
	assert.Equal(t, []generic.CoachID{"coach-a", "coach-b"}, s.Coaches)
	assert.Equal(t, 1, s.MaxStudents)
	assert.Equal(t, 90*time.Minute, s.Window.Duration())
}

func TestParseCommand_ExplicitZeroCapacity(t *testing.T) {
	body := `{"type":"create_session","payload":{"name":"Closed","start":"2025-03-03T09:00:00Z","end":"2025-03-03T10:00:00Z","coaches":[],"recurring":false,"max_students":0}}`

	cmd, err := factory.ParseCommand([]byte(body))
	require.NoError(t, err)
	s, err := cmd.(*factory.CreateSession).Build("s-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, s.MaxStudents)
}

func TestParseCommand_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind error
	}{
		{"malformed json", `{"type":`, factory.ErrInvalidCommand},
		{"unknown type", `{"type":"launch_rocket","payload":{}}`, factory.ErrInvalidCommand},
		{"missing payload", `{"type":"mark_paid"}`, factory.ErrInvalidCommand},
		{"unknown field", `{"type":"mark_paid","payload":{"payment_id":"p-1","amount":5}}`, factory.ErrInvalidCommand},
		{"inverted window", `{"type":"create_session","payload":{"name":"x","start":"2025-03-03T10:00:00Z","end":"2025-03-03T09:00:00Z"}}`, generic.ErrInvariantViolation},
		{"recurring without days", `{"type":"create_session","payload":{"name":"x","start":"2025-03-03T09:00:00Z","end":"2025-03-03T10:00:00Z","coaches":["c"],"recurring":true}}`, generic.ErrInvalidRecurrence},
		{"weekday out of range", `{"type":"create_session","payload":{"name":"x","start":"2025-03-03T09:00:00Z","end":"2025-03-03T10:00:00Z","coaches":["c"],"recurring":true,"days_of_week":[9]}}`, generic.ErrInvalidRecurrence},
		{"recurring without coach", `{"type":"create_session","payload":{"name":"x","start":"2025-03-03T09:00:00Z","end":"2025-03-03T10:00:00Z","recurring":true,"days_of_week":[1]}}`, generic.ErrInvariantViolation},
		{"bad email", `{"type":"book_student","payload":{"session_id":"s-1","name":"Ana","email":"not-an-email"}}`, generic.ErrInvariantViolation},
		{"negative rate", `{"type":"update_coach_rate","payload":{"coach_id":"c","hourly_rate":"-1"}}`, generic.ErrInvariantViolation},
		{"details without fields", `{"type":"update_session_details","payload":{"session_id":"s-1"}}`, generic.ErrInvariantViolation},
		{"blank session name", `{"type":"update_session_details","payload":{"session_id":"s-1","name":"  "}}`, generic.ErrInvariantViolation},
		{"profile without fields", `{"type":"update_coach_profile","payload":{"coach_id":"c"}}`, generic.ErrInvariantViolation},
		{"profile bad email", `{"type":"update_coach_profile","payload":{"coach_id":"c","email":"nope"}}`, generic.ErrInvariantViolation},
		{"bad expand date", `{"type":"expand_template","payload":{"template_id":"t","from":"03/03/2025"}}`, generic.ErrInvalidRecurrence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseCommand([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestParseCommand_CreateCoachAcceptsNumericRate(t *testing.T) {
	cmd, err := factory.ParseCommand([]byte(`{"type":"create_coach","payload":{"id":"coach-a","name":"Alex","email":"alex@example.com","hourly_rate":42.5}}`))
	require.NoError(t, err)

	coach := cmd.(*factory.CreateCoach).Build()
	assert.True(t, coach.HourlyRate.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "create_coach", cmd.CommandType())
}

func TestTypes_CoverEveryVariant(t *testing.T) {
	assert.Len(t, factory.Types(), 16)
}

func TestParseCommand_PartialUpdates(t *testing.T) {
	// GIVEN: a details update that only carries a description
	cmd, err := factory.ParseCommand([]byte(`{"type":"update_session_details","payload":{"session_id":"s-1","description":""}}`))
	require.NoError(t, err)

	// THEN: the name is left unset and the empty description is kept
	details := cmd.(*factory.UpdateSessionDetails)
	assert.Nil(t, details.Name)
	require.NotNil(t, details.Description)
	assert.Empty(t, *details.Description)

	cmd, err = factory.ParseCommand([]byte(`{"type":"update_coach_profile","payload":{"coach_id":"coach-a","name":"Alexis"}}`))
	require.NoError(t, err)
	profile := cmd.(*factory.UpdateCoachProfile)
	assert.Equal(t, "Alexis", *profile.Name)
	assert.Nil(t, profile.Email)
}
