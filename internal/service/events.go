package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-reading-api/internal/observability"
)

// Domain event names, appended to the configured subject prefix.
const (
	EventExerciseIngested    = "exercise.ingested"
	EventSubmissionScored    = "submission.scored"
	EventSubmissionRegraded  = "submission.regraded"
	EventReviewStatusChanged = "review.status_changed"
)

// EventPublisher announces domain events. Publishing is best effort and
// never fails the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event string, data interface{})
}

// Event is the envelope written to the message bus.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type natsEventPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewEventPublisher publishes events to NATS under prefix. A nil connection
// yields a publisher that only logs.
func NewEventPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	return &natsEventPublisher{
		conn:   conn,
		prefix: strings.Trim(strings.ReplaceAll(prefix, ":", "."), "."),
		logger: logger.With().Str("component", "event_publisher").Logger(),
		now:    time.Now,
	}
}

func (p *natsEventPublisher) subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

func (p *natsEventPublisher) Publish(ctx context.Context, event string, data interface{}) {
	subject := p.subject(event)
	if p.conn == nil {
		p.logger.Debug().Str("subject", subject).Msg("event bus disabled, event dropped")
		observability.EventsPublished().WithLabelValues(event, "skipped").Inc()
		return
	}

	payload, err := json.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       event,
		OccurredAt: p.now().UTC(),
		Data:       data,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to encode event")
		observability.EventsPublished().WithLabelValues(event, "error").Inc()
		return
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		observability.EventsPublished().WithLabelValues(event, "error").Inc()
		return
	}

	observability.EventsPublished().WithLabelValues(event, "published").Inc()
}
