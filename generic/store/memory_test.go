package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/generic/store"
)

func session(id generic.SessionID, hour int) *generic.Session {
	start := time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
	return &generic.Session{
		ID:      id,
		Name:    string(id),
		Window:  generic.MustTimeWindow(start, start.Add(time.Hour)),
		Coaches: []generic.CoachID{"coach-a"},
	}
}

func payment(id generic.PaymentID, sessionID generic.SessionID, coachID generic.CoachID) *generic.Payment {
	return &generic.Payment{
		ID:         id,
		SessionID:  sessionID,
		CoachID:    coachID,
		Hours:      decimal.NewFromInt(1),
		Rate:       decimal.NewFromInt(40),
		AmountOwed: decimal.NewFromInt(40),
		AmountPaid: decimal.Zero,
		Status:     generic.PaymentPending,
		CreatedAt:  time.Now(),
	}
}

func TestMemory_SessionVersioning(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	// GIVEN: a saved session
	s := session("s-1", 9)
	require.NoError(t, m.SaveSession(ctx, s))
	assert.Equal(t, 1, s.Version)

	// WHEN: two readers load it and both write
	a, err := m.GetSession(ctx, "s-1")
	require.NoError(t, err)
	b, err := m.GetSession(ctx, "s-1")
	require.NoError(t, err)

	a.Name = "first"
	require.NoError(t, m.SaveSession(ctx, a))

	b.Name = "second"
	err = m.SaveSession(ctx, b)

	// THEN: the stale writer loses
	assert.True(t, errors.Is(err, generic.ErrConcurrentModification))
	got, _ := m.GetSession(ctx, "s-1")
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 2, got.Version)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	s := session("s-1", 9)
	require.NoError(t, m.SaveSession(ctx, s))

	s.Coaches[0] = "mutated"
	got, _ := m.GetSession(ctx, "s-1")
	assert.Equal(t, generic.CoachID("coach-a"), got.Coaches[0])
}

func TestMemory_UniqueOccurrence(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	a := session("i-1", 9)
	a.TemplateID, a.OccurrenceDate = "tpl", "2025-03-10"
	require.NoError(t, m.SaveSession(ctx, a))

	b := session("i-2", 9)
	b.TemplateID, b.OccurrenceDate = "tpl", "2025-03-10"
	assert.True(t, errors.Is(m.SaveSession(ctx, b), generic.ErrDuplicateOccurrence))

	// AND: deleting the instance frees the slot
	require.NoError(t, m.DeleteSession(ctx, "i-1"))
	assert.NoError(t, m.SaveSession(ctx, b))
}

func TestMemory_UniquePaymentPerSessionCoach(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SavePayment(ctx, payment("p-1", "s-1", "coach-a")))
	err := m.SavePayment(ctx, payment("p-2", "s-1", "coach-a"))
	assert.True(t, errors.Is(err, generic.ErrDuplicatePayment))

	require.NoError(t, m.SavePayment(ctx, payment("p-3", "s-1", "coach-b")))
	require.NoError(t, m.DeletePaymentsBySession(ctx, "s-1"))

	list, err := m.ListPayments(ctx, generic.PaymentFilter{SessionID: "s-1"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_ListSessionsFilter(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	late := session("late", 15)
	early := session("early", 8)
	other := session("other", 10)
	other.Coaches = []generic.CoachID{"coach-b"}
	for _, s := range []*generic.Session{late, early, other} {
		require.NoError(t, m.SaveSession(ctx, s))
	}

	list, err := m.ListSessions(ctx, generic.SessionFilter{CoachID: "coach-a"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, generic.SessionID("early"), list[0].ID)
	assert.Equal(t, generic.SessionID("late"), list[1].ID)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	m := store.NewTxMemory()
	require.NoError(t, m.SaveSession(ctx, session("s-1", 9)))

	// WHEN: a transaction writes a payment, deletes the session, then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(repo generic.Repository) error {
		if err := repo.SavePayment(ctx, payment("p-1", "s-1", "coach-a")); err != nil {
			return err
		}
		if err := repo.DeleteSession(ctx, "s-1"); err != nil {
			return err
		}
		return boom
	})

	// THEN: nothing was applied
	assert.ErrorIs(t, err, boom)
	_, err = m.GetSession(ctx, "s-1")
	assert.NoError(t, err)
	_, err = m.GetPayment(ctx, "p-1")
	assert.True(t, errors.Is(err, generic.ErrPaymentNotFound))
}

func TestTxMemory_Commit(t *testing.T) {
	ctx := context.Background()
	m := store.NewTxMemory()

	err := m.WithTx(ctx, func(repo generic.Repository) error {
		if err := repo.SaveCoach(ctx, generic.Coach{ID: "coach-a", HourlyRate: decimal.NewFromInt(40)}); err != nil {
			return err
		}
		return repo.SaveSession(ctx, session("s-1", 9))
	})
	require.NoError(t, err)

	c, err := m.GetCoach(ctx, "coach-a")
	require.NoError(t, err)
	assert.True(t, c.HourlyRate.Equal(decimal.NewFromInt(40)))
}

func TestMemory_ReinsertedInstanceIsDuplicateOccurrence(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	instance := func() *generic.Session {
		s := session("tpl-2025-03-10", 9)
		s.TemplateID = "tpl"
		s.OccurrenceDate = "2025-03-10"
		return s
	}
	require.NoError(t, m.SaveSession(ctx, instance()))

	// WHEN: a second expansion inserts the same instance id
	err := m.SaveSession(ctx, instance())

	// THEN: it is reported as the occurrence already existing
	assert.True(t, errors.Is(err, generic.ErrDuplicateOccurrence))

	// AND: a plain session reusing an id is still a stale write
	require.NoError(t, m.SaveSession(ctx, session("s-1", 9)))
	err = m.SaveSession(ctx, session("s-1", 10))
	assert.True(t, errors.Is(err, generic.ErrConcurrentModification))
}

func TestTxMemory_RollbackRestoresVersions(t *testing.T) {
	ctx := context.Background()
	m := store.NewTxMemory()
	sess := session("s-1", 9)
	require.NoError(t, m.SaveSession(ctx, sess))
	require.Equal(t, 1, sess.Version)

	// WHEN: a transaction saves the session twice and a new payment, then fails
	pay := payment("p-1", "s-1", "coach-a")
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(repo generic.Repository) error {
		if err := repo.SaveSession(ctx, sess); err != nil {
			return err
		}
		if err := repo.SavePayment(ctx, pay); err != nil {
			return err
		}
		if err := repo.SaveSession(ctx, sess); err != nil {
			return err
		}
		return boom
	})

	// THEN: the caller's versions match the store again
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sess.Version)
	assert.Equal(t, 0, pay.Version)

	// AND: the same pointers can be saved without a conflict
	require.NoError(t, m.SaveSession(ctx, sess))
	require.NoError(t, m.SavePayment(ctx, pay))
	assert.Equal(t, 2, sess.Version)
	assert.Equal(t, 1, pay.Version)
}
