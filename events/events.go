/*
Package events publishes lifecycle events for downstream consumers.

PURPOSE:
  Accounting and notification consumers learn about payments and sessions
  from events, not by polling the database. The service publishes after the
  transaction commits. A publish failure is logged by the caller and never
  undoes the committed change.

IMPLEMENTATIONS:
  - Noop:          default when no broker is configured
  - Recorder:      keeps events in memory, for tests
  - AMQPPublisher: RabbitMQ, one durable queue, persistent JSON messages

SEE ALSO:
  - coaching/service.go: Where events are emitted
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PaymentCreated   Type = "payment.created"
	PaymentPaid      Type = "payment.paid"
	PaymentCancelled Type = "payment.cancelled"
	PaymentDeleted   Type = "payment.deleted"
	SessionCreated   Type = "session.created"
	SessionDeleted   Type = "session.deleted"
	TemplateExpanded Type = "template.expanded"
)

type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Actor       string         `json:"actor,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, aggregateID, actor string, data map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Actor:       actor,
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// =============================================================================
// NOOP
// =============================================================================

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// =============================================================================
// RECORDER
// =============================================================================

type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
