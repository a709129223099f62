package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/payroll"
)

func pay(id string, coach generic.CoachID, owed string, status generic.PaymentStatus, created time.Time) *generic.Payment {
	p := &generic.Payment{
		ID:         generic.PaymentID(id),
		SessionID:  generic.SessionID("s-" + id),
		CoachID:    coach,
		Hours:      dec("1.5"),
		Rate:       dec(owed).Div(dec("1.5")),
		AmountOwed: dec(owed),
		AmountPaid: decimal.Zero,
		Status:     status,
		CreatedAt:  created,
	}
	if status == generic.PaymentPaid {
		p.AmountPaid = p.AmountOwed
	}
	return p
}

func month(m time.Month, day int) time.Time {
	return time.Date(2025, m, day, 10, 0, 0, 0, time.UTC)
}

func newReporter() *payroll.Reporter {
	return payroll.NewReporter(time.UTC, func() time.Time { return clock })
}

func TestCoachSummaries(t *testing.T) {
	// GIVEN: two coaches, one with mixed payments, plus a payment for an unknown coach
	coaches := []generic.Coach{
		{ID: "coach-a", Name: "Alex", HourlyRate: dec("40")},
		{ID: "coach-b", Name: "Bo", HourlyRate: dec("50")},
	}
	payments := []*generic.Payment{
		pay("1", "coach-a", "60", generic.PaymentPaid, month(3, 1)),
		pay("2", "coach-a", "60", generic.PaymentPending, month(3, 2)),
		pay("3", "coach-a", "60", generic.PaymentCancelled, month(3, 3)),
		pay("4", "coach-z", "30", generic.PaymentPending, month(3, 3)),
	}

	// WHEN
	rows := newReporter().CoachSummaries(coaches, payments)

	// THEN
	require.Len(t, rows, 3)
	a := rows[0]
	assert.Equal(t, generic.CoachID("coach-a"), a.CoachID)
	assert.True(t, a.TotalHours.Equal(dec("4.5")))
	assert.True(t, a.TotalOwed.Equal(dec("180")))
	assert.True(t, a.TotalPaid.Equal(dec("60")))
	assert.True(t, a.RemainingAmount.Equal(dec("120")))
	assert.Equal(t, 2, a.UnpaidSessions)
	assert.Equal(t, 3, a.PaymentCount)

	b := rows[1]
	assert.Equal(t, 0, b.PaymentCount)
	assert.True(t, b.RemainingAmount.IsZero())

	assert.Equal(t, generic.CoachID("coach-z"), rows[2].CoachID)
}

func TestCoachSummary_IgnoresOtherCoaches(t *testing.T) {
	payments := []*generic.Payment{
		pay("1", "coach-a", "60", generic.PaymentPaid, month(3, 1)),
		pay("2", "coach-b", "60", generic.PaymentPending, month(3, 2)),
	}
	row := newReporter().CoachSummary(generic.Coach{ID: "coach-a"}, payments)
	assert.Equal(t, 1, row.PaymentCount)
	assert.Equal(t, 0, row.UnpaidSessions)
}

func TestGlobal(t *testing.T) {
	start := month(3, 10)
	sessions := []*generic.Session{
		{ID: "s-1", Window: generic.MustTimeWindow(start, start.Add(time.Hour))},
		{ID: "tpl", Window: generic.MustTimeWindow(start, start.Add(time.Hour)), Recurrence: &generic.Recurrence{Days: 2, Active: true}},
	}
	payments := []*generic.Payment{
		pay("1", "coach-a", "60", generic.PaymentPaid, month(3, 1)),
		pay("2", "coach-b", "45", generic.PaymentPending, month(3, 2)),
	}

	stats := newReporter().Global([]generic.Coach{{ID: "coach-a"}, {ID: "coach-b"}}, sessions, payments)

	assert.Equal(t, 2, stats.TotalCoaches)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.True(t, stats.TotalHours.Equal(dec("3")))
	assert.True(t, stats.TotalPayments.Equal(dec("105")))
	assert.True(t, stats.TotalPaid.Equal(dec("60")))
}

func TestMonthly_MostRecentFirst(t *testing.T) {
	payments := []*generic.Payment{
		pay("1", "coach-a", "60", generic.PaymentPaid, month(1, 5)),
		pay("2", "coach-a", "40", generic.PaymentPaid, month(3, 1)),
		pay("3", "coach-a", "20", generic.PaymentPaid, month(3, 20)),
		pay("4", "coach-a", "99", generic.PaymentPending, month(3, 21)),
		pay("5", "coach-a", "10", generic.PaymentPaid, month(2, 2)),
	}

	buckets := newReporter().Monthly(payments, 2)

	require.Len(t, buckets, 2)
	assert.Equal(t, "2025-03", buckets[0].Label())
	assert.True(t, buckets[0].Total.Equal(dec("60")))
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, "2025-02", buckets[1].Label())

	assert.Len(t, newReporter().Monthly(payments, 0), 3)
}

func TestEarnings(t *testing.T) {
	payments := []*generic.Payment{
		pay("1", "coach-a", "60", generic.PaymentPaid, month(2, 5)),
		pay("2", "coach-a", "40", generic.PaymentPaid, month(3, 1)),
		pay("3", "coach-a", "25", generic.PaymentPending, month(3, 14)),
	}

	e := newReporter().Earnings(payments, 6, 2)

	assert.True(t, e.TotalEarned.Equal(dec("100")))
	assert.True(t, e.Pending.Equal(dec("25")))
	assert.True(t, e.ThisMonth.Equal(dec("40")), "clock is in March")
	assert.Len(t, e.Monthly, 2)
	require.Len(t, e.Recent, 2)
	assert.Equal(t, generic.PaymentID("3"), e.Recent[0].ID)
}
