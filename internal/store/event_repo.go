package store

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/models"
)

// EventRepo is the durable event log.
type EventRepo interface {
	// AppendEvent stores ev. Appending an event ID twice is a no-op.
	AppendEvent(ev models.ViralEvent) error
	// ListEvents returns the most recent events of eventType ("" for all) in publish order,
	// at most limit of them when limit > 0.
	ListEvents(eventType string, limit int) ([]models.ViralEvent, error)
}

// EventSink copies every bus event into an EventRepo. Subscribe it on models.EventWildcard.
type EventSink struct {
	repo EventRepo
}

var _ events.Handler = (*EventSink)(nil)

// NewEventSink creates a sink writing to repo.
func NewEventSink(repo EventRepo) *EventSink {
	return &EventSink{repo: repo}
}

// Handle implements events.Handler.
func (s *EventSink) Handle(_ context.Context, ev models.ViralEvent) error {
	if err := s.repo.AppendEvent(ev); err != nil {
		slog.Error("EventSink.Handle: append failed", "event_id", ev.ID, "event_type", ev.EventType, "error", err)
		return err
	}
	return nil
}
