// Package events delivers committed queue activity to outside observers.
// Delivery is best effort: a sink failure never undoes a queue mutation.
package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"loan-queue/internal/models"
)

// Sink receives activity after the mutation that produced it has committed
type Sink interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}

// LogSink writes one structured log line per event
type LogSink struct{}

// Publish logs the event
func (LogSink) Publish(_ context.Context, event models.AuditEvent) error {
	log.Info().
		Str("event_id", event.ID).
		Str("action", string(event.Action)).
		Str("job_id", event.JobID).
		Str("member_id", event.MemberID).
		Str("actor", event.ActorID).
		Str("role", event.ActorRole).
		Time("occurred_at", event.OccurredAt).
		Msg(event.Description)
	return nil
}

// Multi fans an event out to every sink and joins their errors
type Multi []Sink

// Publish delivers to all sinks even when some fail
func (m Multi) Publish(ctx context.Context, event models.AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event
type Discard struct{}

// Publish does nothing
func (Discard) Publish(context.Context, models.AuditEvent) error { return nil }
