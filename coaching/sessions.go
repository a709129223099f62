package coaching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warp/coaching-engine/events"
	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/lock"
	"github.com/warp/coaching-engine/payroll"
	"github.com/warp/coaching-engine/schedule"
)

// =============================================================================
// CREATE / READ
// =============================================================================

// CreateSession stores a one-off session or a recurring template. One-off
// sessions are billed immediately. Active templates are expanded over the
// default horizon starting today.
func (s *Service) CreateSession(ctx context.Context, p generic.Principal, cmd factory.CreateSession) (*generic.Session, error) {
	if err := requireAdmin(p, "create sessions"); err != nil {
		return nil, err
	}
	now := s.now()
	sess, err := cmd.Build(s.newID(), now)
	if err != nil {
		return nil, err
	}

	var created []*generic.Payment
	err = s.store.WithTx(ctx, func(repo generic.Repository) error {
		for _, id := range sess.Coaches {
			if _, err := repo.GetCoach(ctx, id); err != nil {
				return fmt.Errorf("coach %s: %w", id, err)
			}
		}
		if err := repo.SaveSession(ctx, sess); err != nil {
			return err
		}
		created, err = s.billCoaches(ctx, repo, sess, sess.Coaches)
		if err != nil {
			return err
		}
		if len(created) > 0 {
			return repo.SaveSession(ctx, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evs := []events.Event{events.New(events.SessionCreated, string(sess.ID), p.ID, map[string]any{"template": sess.IsTemplate()})}
	for _, pay := range created {
		evs = append(evs, paymentEvent(events.PaymentCreated, pay, p))
	}
	s.publish(ctx, evs...)

	if sess.IsActiveTemplate() {
		if _, err := s.ExpandTemplate(ctx, p, sess.ID, s.Today(), s.horizonDays); err != nil {
			return sess, fmt.Errorf("template %s created but expansion failed: %w", sess.ID, err)
		}
	}
	return sess, nil
}

// GetSession is open to every principal: the calendar is shared.
func (s *Service) GetSession(ctx context.Context, _ generic.Principal, id generic.SessionID) (*generic.Session, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, _ generic.Principal, filter generic.SessionFilter) ([]*generic.Session, error) {
	return s.store.ListSessions(ctx, filter)
}

// =============================================================================
// SESSION MUTATIONS
// =============================================================================

// mutateSession is the load-apply-save cycle shared by ledger operations.
func (s *Service) mutateSession(
	ctx context.Context,
	id generic.SessionID,
	apply func(repo generic.Repository, sess *generic.Session) (*generic.Session, error),
) (*generic.Session, error) {
	var result *generic.Session
	err := s.locked(ctx, []string{lock.SessionKey(string(id))}, func() error {
		return s.store.WithTx(ctx, func(repo generic.Repository) error {
			sess, err := repo.GetSession(ctx, id)
			if err != nil {
				return err
			}
			next, err := apply(repo, sess)
			if err != nil {
				return err
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := repo.SaveSession(ctx, next); err != nil {
				return err
			}
			result = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RescheduleSession moves a session. Existing payments keep their frozen hours.
func (s *Service) RescheduleSession(ctx context.Context, p generic.Principal, id generic.SessionID, start, end time.Time) (*generic.Session, error) {
	if err := requireAdmin(p, "reschedule sessions"); err != nil {
		return nil, err
	}
	return s.mutateSession(ctx, id, func(_ generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, _, err := s.ledger.Reschedule(sess, start, end)
		return next, err
	})
}

// UpdateSessionDetails renames a session or edits its description. Renaming
// a template does not touch instances already expanded.
func (s *Service) UpdateSessionDetails(ctx context.Context, p generic.Principal, id generic.SessionID, name, description *string) (*generic.Session, error) {
	if err := requireAdmin(p, "edit sessions"); err != nil {
		return nil, err
	}
	return s.mutateSession(ctx, id, func(_ generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, _, err := s.ledger.UpdateDetails(sess, name, description)
		return next, err
	})
}

func (s *Service) SetCapacity(ctx context.Context, p generic.Principal, id generic.SessionID, max int) (*generic.Session, error) {
	if err := requireAdmin(p, "change capacity"); err != nil {
		return nil, err
	}
	return s.mutateSession(ctx, id, func(_ generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, _, err := s.ledger.SetCapacity(sess, max)
		return next, err
	})
}

// DeleteSession removes a session and its payments. Instances of a deleted
// template are independent sessions and stay.
func (s *Service) DeleteSession(ctx context.Context, p generic.Principal, id generic.SessionID) error {
	if err := requireAdmin(p, "delete sessions"); err != nil {
		return err
	}
	var removed []*generic.Payment
	err := s.locked(ctx, []string{lock.SessionKey(string(id))}, func() error {
		return s.store.WithTx(ctx, func(repo generic.Repository) error {
			if _, err := repo.GetSession(ctx, id); err != nil {
				return err
			}
			var err error
			removed, err = repo.ListPayments(ctx, generic.PaymentFilter{SessionID: id})
			if err != nil {
				return err
			}
			if err := repo.DeletePaymentsBySession(ctx, id); err != nil {
				return err
			}
			return repo.DeleteSession(ctx, id)
		})
	})
	if err != nil {
		return err
	}

	evs := []events.Event{events.New(events.SessionDeleted, string(id), p.ID, map[string]any{"payments_removed": len(removed)})}
	for _, pay := range removed {
		evs = append(evs, paymentEvent(events.PaymentDeleted, pay, p))
	}
	s.publish(ctx, evs...)
	return nil
}

// =============================================================================
// COACH ASSIGNMENT
// =============================================================================

// AssignCoach adds a coach and, on a billable session, creates their
// pending payment unless one already exists for the pair. A cancelled
// payment left from an earlier assignment is replaced by a fresh one at the
// coach's current rate; a paid one stands.
func (s *Service) AssignCoach(ctx context.Context, p generic.Principal, id generic.SessionID, coachID generic.CoachID) (*generic.Session, error) {
	if err := requireAdmin(p, "assign coaches"); err != nil {
		return nil, err
	}
	var created []*generic.Payment
	var replaced *generic.Payment
	sess, err := s.mutateSession(ctx, id, func(repo generic.Repository, sess *generic.Session) (*generic.Session, error) {
		if _, err := repo.GetCoach(ctx, coachID); err != nil {
			return nil, fmt.Errorf("coach %s: %w", coachID, err)
		}
		next, change, err := s.ledger.AssignCoach(sess, coachID)
		if err != nil {
			return nil, err
		}
		if change.NeedsPayment {
			replaced, err = dropCancelledPayment(ctx, repo, id, coachID)
			if err != nil {
				return nil, err
			}
			created, err = s.billCoaches(ctx, repo, next, []generic.CoachID{coachID})
			if err != nil {
				return nil, err
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if replaced != nil {
		s.publish(ctx, paymentEvent(events.PaymentDeleted, replaced, p))
	}
	for _, pay := range created {
		s.publish(ctx, paymentEvent(events.PaymentCreated, pay, p))
	}
	return sess, nil
}

// dropCancelledPayment deletes the cancelled payment of the pair, if any.
func dropCancelledPayment(ctx context.Context, repo generic.Repository, id generic.SessionID, coachID generic.CoachID) (*generic.Payment, error) {
	payments, err := repo.ListPayments(ctx, generic.PaymentFilter{SessionID: id, CoachID: coachID})
	if err != nil {
		return nil, err
	}
	for _, pay := range payments {
		if pay.Status != generic.PaymentCancelled {
			continue
		}
		if err := repo.DeletePayment(ctx, pay.ID); err != nil {
			return nil, err
		}
		return pay, nil
	}
	return nil, nil
}

// UnassignCoach removes a coach. Their pending payment is deleted; a paid or
// cancelled one is history and stays.
func (s *Service) UnassignCoach(ctx context.Context, p generic.Principal, id generic.SessionID, coachID generic.CoachID) (*generic.Session, error) {
	if err := requireAdmin(p, "unassign coaches"); err != nil {
		return nil, err
	}
	var dropped *generic.Payment
	sess, err := s.mutateSession(ctx, id, func(repo generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, change, err := s.ledger.UnassignCoach(sess, coachID)
		if err != nil {
			return nil, err
		}
		if !change.DropsPayment {
			return next, nil
		}
		payments, err := repo.ListPayments(ctx, generic.PaymentFilter{SessionID: id})
		if err != nil {
			return nil, err
		}
		kept := payments[:0]
		for _, pay := range payments {
			if pay.CoachID == coachID && pay.Status == generic.PaymentPending {
				if err := repo.DeletePayment(ctx, pay.ID); err != nil {
					return nil, err
				}
				dropped = pay
				continue
			}
			kept = append(kept, pay)
		}
		next.Paid = payroll.SessionPaid(kept)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if dropped != nil {
		s.publish(ctx, paymentEvent(events.PaymentDeleted, dropped, p))
	}
	return sess, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

// BookStudent is open to every principal.
func (s *Service) BookStudent(ctx context.Context, _ generic.Principal, id generic.SessionID, student generic.Booking) (*generic.Session, error) {
	return s.mutateSession(ctx, id, func(_ generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, _, err := s.ledger.BookStudent(sess, student)
		return next, err
	})
}

func (s *Service) CancelBooking(ctx context.Context, _ generic.Principal, id generic.SessionID, email string) (*generic.Session, error) {
	return s.mutateSession(ctx, id, func(_ generic.Repository, sess *generic.Session) (*generic.Session, error) {
		next, _, err := s.ledger.CancelBooking(sess, email)
		return next, err
	})
}

// =============================================================================
// EXPANSION
// =============================================================================

// ExpansionResult reports one template's expansion.
type ExpansionResult struct {
	TemplateID generic.SessionID
	Created    []*generic.Session
	Existing   int
	Payments   int
}

// ExpandTemplate materializes the instances of a template over
// [from, from+days). Each instance is written in its own transaction, and ctx
// is checked between dates, so a cancelled run leaves only whole instances
// behind and the next run picks up where it stopped. days <= 0 means the
// default horizon.
func (s *Service) ExpandTemplate(ctx context.Context, p generic.Principal, templateID generic.SessionID, from time.Time, days int) (*ExpansionResult, error) {
	if err := requireAdmin(p, "expand templates"); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.horizonDays
	}

	tpl, err := s.store.GetSession(ctx, templateID)
	if err != nil {
		return nil, err
	}
	instances, err := s.store.ListSessions(ctx, generic.SessionFilter{TemplateID: templateID})
	if err != nil {
		return nil, err
	}
	seq, err := s.expander.Expand(tpl, generic.NewHorizon(from, days), schedule.NewIndex(instances))
	if err != nil {
		return nil, err
	}

	result := &ExpansionResult{TemplateID: templateID}
	var evs []events.Event
	defer func() { s.publish(ctx, evs...) }()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		occ, ok := seq.Next()
		if !ok {
			break
		}
		if occ.Exists {
			result.Existing++
			continue
		}

		inst := occ.Session
		inst.CreatedAt = s.now()
		inst.UpdatedAt = inst.CreatedAt
		var created []*generic.Payment
		err := s.store.WithTx(ctx, func(repo generic.Repository) error {
			if err := repo.SaveSession(ctx, inst); err != nil {
				return err
			}
			var err error
			created, err = s.billCoaches(ctx, repo, inst, inst.Coaches)
			if err != nil {
				return err
			}
			if len(created) > 0 {
				return repo.SaveSession(ctx, inst)
			}
			return nil
		})
		if errors.Is(err, generic.ErrDuplicateOccurrence) {
			// Another expansion got there first.
			result.Existing++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("expand %s on %s: %w", templateID, occ.Date, err)
		}

		result.Created = append(result.Created, inst)
		result.Payments += len(created)
		for _, pay := range created {
			evs = append(evs, paymentEvent(events.PaymentCreated, pay, p))
		}
	}

	if len(result.Created) > 0 {
		evs = append(evs, events.New(events.TemplateExpanded, string(templateID), p.ID, map[string]any{
			"created": len(result.Created),
			"from":    generic.DateKey(from.In(s.loc)),
			"days":    days,
		}))
	}
	return result, nil
}

// ExpandAllTemplates expands every active template. A failing template is
// logged and reported in the joined error; the others still run.
func (s *Service) ExpandAllTemplates(ctx context.Context, p generic.Principal, from time.Time, days int) ([]*ExpansionResult, error) {
	if err := requireAdmin(p, "expand templates"); err != nil {
		return nil, err
	}
	templates, err := s.store.ListSessions(ctx, generic.SessionFilter{TemplatesOnly: true})
	if err != nil {
		return nil, err
	}

	var results []*ExpansionResult
	var errs []error
	for _, tpl := range templates {
		if !tpl.IsActiveTemplate() {
			continue
		}
		res, err := s.ExpandTemplate(ctx, p, tpl.ID, from, days)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			log.Printf("[Service] expand template %s failed: %v", tpl.ID, err)
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
