package coaching

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
)

// Execute runs a parsed command. The result is the aggregate the command
// produced or changed (nil for deletions).
func (s *Service) Execute(ctx context.Context, p generic.Principal, cmd factory.Command) (any, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case *factory.CreateSession:
		return s.CreateSession(ctx, p, *c)
	case *factory.UpdateSessionDetails:
		return s.UpdateSessionDetails(ctx, p, generic.SessionID(c.SessionID), c.Name, c.Description)
	case *factory.RescheduleSession:
		return s.RescheduleSession(ctx, p, generic.SessionID(c.SessionID), c.Start, c.End)
	case *factory.SetCapacity:
		return s.SetCapacity(ctx, p, generic.SessionID(c.SessionID), c.MaxStudents)
	case *factory.DeleteSession:
		return nil, s.DeleteSession(ctx, p, generic.SessionID(c.SessionID))
	case *factory.ExpandTemplate:
		from := s.Today()
		if c.From != "" {
			from, _ = time.ParseInLocation("2006-01-02", c.From, s.loc)
		}
		return s.ExpandTemplate(ctx, p, generic.SessionID(c.TemplateID), from, c.Days)

	case *factory.AssignCoach:
		return s.AssignCoach(ctx, p, generic.SessionID(c.SessionID), generic.CoachID(c.CoachID))
	case *factory.UnassignCoach:
		return s.UnassignCoach(ctx, p, generic.SessionID(c.SessionID), generic.CoachID(c.CoachID))
	case *factory.CreateCoach:
		return s.CreateCoach(ctx, p, c.Build())
	case *factory.UpdateCoachProfile:
		return s.UpdateCoachProfile(ctx, p, generic.CoachID(c.CoachID), c.Name, c.Email)
	case *factory.UpdateCoachRate:
		return s.UpdateCoachRate(ctx, p, generic.CoachID(c.CoachID), c.HourlyRate)

	case *factory.BookStudent:
		return s.BookStudent(ctx, p, generic.SessionID(c.SessionID), generic.Booking{Name: c.Name, Email: c.Email})
	case *factory.CancelBooking:
		return s.CancelBooking(ctx, p, generic.SessionID(c.SessionID), c.Email)

	case *factory.MarkPaid:
		return s.MarkPaid(ctx, p, generic.PaymentID(c.PaymentID))
	case *factory.CancelPayment:
		return s.CancelPayment(ctx, p, generic.PaymentID(c.PaymentID))
	case *factory.DeletePayment:
		return nil, s.DeletePayment(ctx, p, generic.PaymentID(c.PaymentID))
	}
	return nil, fmt.Errorf("%w: no handler for %s", factory.ErrInvalidCommand, cmd.CommandType())
}
