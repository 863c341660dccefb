package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the bus.
const (
	EventTriggerReceived = "trigger.received"
	EventActionEvaluated = "action.evaluated"
	EventLoopExecuted    = "loop.executed"
	EventInviteGenerated = "invite.generated"
	EventSafetyBlocked   = "safety.blocked"
	EventLinkClicked     = "link.clicked"
	EventPipelineError   = "pipeline.error"

	// EventWildcard subscribes to every event type.
	EventWildcard = "*"
)

// ViralEvent is an immutable fact published once on the bus. Timestamp marshals as RFC 3339.
type ViralEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent stamps a new event with a fresh ID and the current UTC time.
func NewEvent(eventType string, payload map[string]any) ViralEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return ViralEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
