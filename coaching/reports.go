package coaching

import (
	"context"

	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/payroll"
)

// =============================================================================
// DASHBOARDS - one list per collection, then a single pass in payroll.Reporter
// =============================================================================

func (s *Service) CoachSummaries(ctx context.Context, p generic.Principal) ([]payroll.CoachSummary, error) {
	if err := requireAdmin(p, "view all coach summaries"); err != nil {
		return nil, err
	}
	coaches, err := s.store.ListCoaches(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, generic.PaymentFilter{})
	if err != nil {
		return nil, err
	}
	return s.reporter.CoachSummaries(coaches, payments), nil
}

func (s *Service) CoachSummary(ctx context.Context, p generic.Principal, coachID generic.CoachID) (payroll.CoachSummary, error) {
	if err := requireCoachView(p, coachID, "view this coach summary"); err != nil {
		return payroll.CoachSummary{}, err
	}
	coach, err := s.store.GetCoach(ctx, coachID)
	if err != nil {
		return payroll.CoachSummary{}, err
	}
	payments, err := s.store.ListPayments(ctx, generic.PaymentFilter{CoachID: coachID})
	if err != nil {
		return payroll.CoachSummary{}, err
	}
	return s.reporter.CoachSummary(coach, payments), nil
}

func (s *Service) GlobalStats(ctx context.Context, p generic.Principal) (payroll.GlobalStats, error) {
	if err := requireAdmin(p, "view global statistics"); err != nil {
		return payroll.GlobalStats{}, err
	}
	coaches, err := s.store.ListCoaches(ctx)
	if err != nil {
		return payroll.GlobalStats{}, err
	}
	sessions, err := s.store.ListSessions(ctx, generic.SessionFilter{})
	if err != nil {
		return payroll.GlobalStats{}, err
	}
	payments, err := s.store.ListPayments(ctx, generic.PaymentFilter{})
	if err != nil {
		return payroll.GlobalStats{}, err
	}
	return s.reporter.Global(coaches, sessions, payments), nil
}

// Earnings defaults to 6 months and 5 recent payments.
func (s *Service) Earnings(ctx context.Context, p generic.Principal, coachID generic.CoachID, months, recent int) (payroll.Earnings, error) {
	if err := requireCoachView(p, coachID, "view these earnings"); err != nil {
		return payroll.Earnings{}, err
	}
	if months <= 0 {
		months = 6
	}
	if recent <= 0 {
		recent = 5
	}
	payments, err := s.store.ListPayments(ctx, generic.PaymentFilter{CoachID: coachID})
	if err != nil {
		return payroll.Earnings{}, err
	}
	return s.reporter.Earnings(payments, months, recent), nil
}
