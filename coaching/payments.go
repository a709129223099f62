package coaching

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/events"
	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/lock"
)

// =============================================================================
// PAYMENT READS
// =============================================================================

func (s *Service) GetPayment(ctx context.Context, p generic.Principal, id generic.PaymentID) (*generic.Payment, error) {
	pay, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireCoachView(p, pay.CoachID, "view this payment"); err != nil {
		return nil, err
	}
	return pay, nil
}

// ListPayments scopes a coach to their own payments.
func (s *Service) ListPayments(ctx context.Context, p generic.Principal, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	if !p.IsAdmin() {
		if p.Role != generic.RoleCoach {
			return nil, forbidden(p, "list payments")
		}
		if filter.CoachID != "" && filter.CoachID != generic.CoachID(p.ID) {
			return nil, forbidden(p, "list another coach's payments")
		}
		filter.CoachID = generic.CoachID(p.ID)
	}
	return s.store.ListPayments(ctx, filter)
}

// =============================================================================
// PAYMENT TRANSITIONS
// =============================================================================

// transition locks the payment's session and then the payment, applies fn and
// refreshes the session's paid flag in the same transaction.
func (s *Service) transition(
	ctx context.Context,
	id generic.PaymentID,
	fn func(pay *generic.Payment) (*generic.Payment, error),
) (*generic.Payment, error) {
	// Read outside the lock only to learn the session key.
	current, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *generic.Payment
	keys := []string{lock.SessionKey(string(current.SessionID)), lock.PaymentKey(string(id))}
	err = s.locked(ctx, keys, func() error {
		return s.store.WithTx(ctx, func(repo generic.Repository) error {
			pay, err := repo.GetPayment(ctx, id)
			if err != nil {
				return err
			}
			next, err := fn(pay)
			if err != nil {
				return err
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := repo.SavePayment(ctx, next); err != nil {
				return err
			}
			if err := s.refreshPaid(ctx, repo, next.SessionID); err != nil && !generic.IsNotFound(err) {
				return err
			}
			result = next
			return nil
		})
	})
	return result, err
}

// MarkPaid settles a pending payment in full.
func (s *Service) MarkPaid(ctx context.Context, p generic.Principal, id generic.PaymentID) (*generic.Payment, error) {
	if err := requireAdmin(p, "mark payments paid"); err != nil {
		return nil, err
	}
	pay, err := s.transition(ctx, id, s.payroll.MarkPaid)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, paymentEvent(events.PaymentPaid, pay, p))
	return pay, nil
}

func (s *Service) CancelPayment(ctx context.Context, p generic.Principal, id generic.PaymentID) (*generic.Payment, error) {
	if err := requireAdmin(p, "cancel payments"); err != nil {
		return nil, err
	}
	pay, err := s.transition(ctx, id, s.payroll.Cancel)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, paymentEvent(events.PaymentCancelled, pay, p))
	return pay, nil
}

// DeletePayment removes a payment and only recomputes its session's paid flag.
func (s *Service) DeletePayment(ctx context.Context, p generic.Principal, id generic.PaymentID) error {
	if err := requireAdmin(p, "delete payments"); err != nil {
		return err
	}
	current, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return err
	}

	keys := []string{lock.SessionKey(string(current.SessionID)), lock.PaymentKey(string(id))}
	var removed *generic.Payment
	err = s.locked(ctx, keys, func() error {
		return s.store.WithTx(ctx, func(repo generic.Repository) error {
			pay, err := repo.GetPayment(ctx, id)
			if err != nil {
				return err
			}
			if err := repo.DeletePayment(ctx, id); err != nil {
				return err
			}
			if err := s.refreshPaid(ctx, repo, pay.SessionID); err != nil && !generic.IsNotFound(err) {
				return err
			}
			removed = pay
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, paymentEvent(events.PaymentDeleted, removed, p))
	return nil
}

// =============================================================================
// COACH REGISTRY
// =============================================================================

func (s *Service) CreateCoach(ctx context.Context, p generic.Principal, c generic.Coach) (generic.Coach, error) {
	if err := requireAdmin(p, "create coaches"); err != nil {
		return generic.Coach{}, err
	}
	if err := c.Validate(); err != nil {
		return generic.Coach{}, err
	}
	err := s.store.WithTx(ctx, func(repo generic.Repository) error {
		if _, err := repo.GetCoach(ctx, c.ID); err == nil {
			return generic.NewEngineError(generic.ErrInvariantViolation, string(c.ID), "coach_id", "coach already exists")
		} else if !generic.IsNotFound(err) {
			return err
		}
		return repo.SaveCoach(ctx, c)
	})
	return c, err
}

// UpdateCoachProfile changes a coach's name or email. A nil field is kept.
func (s *Service) UpdateCoachProfile(ctx context.Context, p generic.Principal, id generic.CoachID, name, email *string) (generic.Coach, error) {
	if err := requireAdmin(p, "edit coaches"); err != nil {
		return generic.Coach{}, err
	}
	var coach generic.Coach
	err := s.store.WithTx(ctx, func(repo generic.Repository) error {
		var err error
		coach, err = repo.GetCoach(ctx, id)
		if err != nil {
			return err
		}
		if name != nil {
			if strings.TrimSpace(*name) == "" {
				return generic.NewEngineError(generic.ErrInvariantViolation, string(id), "name", "name is required")
			}
			coach.Name = strings.TrimSpace(*name)
		}
		if email != nil {
			coach.Email = strings.TrimSpace(*email)
		}
		if err := coach.Validate(); err != nil {
			return err
		}
		return repo.SaveCoach(ctx, coach)
	})
	if err != nil {
		return generic.Coach{}, fmt.Errorf("update profile of %s: %w", id, err)
	}
	return coach, nil
}

// UpdateCoachRate changes the rate used for future payments only.
func (s *Service) UpdateCoachRate(ctx context.Context, p generic.Principal, id generic.CoachID, rate decimal.Decimal) (generic.Coach, error) {
	if err := requireAdmin(p, "change coach rates"); err != nil {
		return generic.Coach{}, err
	}
	var coach generic.Coach
	err := s.store.WithTx(ctx, func(repo generic.Repository) error {
		var err error
		coach, err = repo.GetCoach(ctx, id)
		if err != nil {
			return err
		}
		coach.HourlyRate = rate
		if err := coach.Validate(); err != nil {
			return err
		}
		return repo.SaveCoach(ctx, coach)
	})
	if err != nil {
		return generic.Coach{}, fmt.Errorf("update rate of %s: %w", id, err)
	}
	return coach, nil
}

func (s *Service) GetCoach(ctx context.Context, p generic.Principal, id generic.CoachID) (generic.Coach, error) {
	if err := requireCoachView(p, id, "view this coach"); err != nil {
		return generic.Coach{}, err
	}
	return s.store.GetCoach(ctx, id)
}

// ListCoaches returns every coach to admins and only themselves to a coach.
func (s *Service) ListCoaches(ctx context.Context, p generic.Principal) ([]generic.Coach, error) {
	if p.IsAdmin() {
		return s.store.ListCoaches(ctx)
	}
	if p.Role != generic.RoleCoach {
		return nil, forbidden(p, "list coaches")
	}
	c, err := s.store.GetCoach(ctx, generic.CoachID(p.ID))
	if err != nil {
		return nil, err
	}
	return []generic.Coach{c}, nil
}
