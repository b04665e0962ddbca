package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates attempt event log entries: lifecycle markers
// written by the server and integrity signals reported by the client.
type EventType string

const (
	// Lifecycle markers (server-written).
	EventAttemptStart       EventType = "attempt_start"
	EventAnswerSubmit       EventType = "answer_submit"
	EventManualSubmit       EventType = "manual_submit"
	EventTimeoutSubmit      EventType = "timeout_submit"
	EventViolationThreshold EventType = "violation_threshold"

	// Integrity signals (client-reported).
	EventTabBlur          EventType = "tab_blur"
	EventVisibilityHidden EventType = "visibility_hidden"
	EventFullscreenExit   EventType = "fullscreen_exit"
	EventSuspiciousFace   EventType = "suspicious_face"
)

// violationTypes are the event types that count toward the forced-completion
// threshold within the trailing window.
var violationTypes = map[EventType]bool{
	EventTabBlur:          true,
	EventVisibilityHidden: true,
	EventFullscreenExit:   true,
	EventSuspiciousFace:   true,
}

// IsViolation reports whether the event type counts toward the violation
// budget. Other types are still logged, they just carry no penalty.
func (t EventType) IsViolation() bool {
	return violationTypes[t]
}

// AttemptEvent is one append-only log entry for an attempt. Events are
// never mutated or deleted; reads are chronological or windowed counts.
type AttemptEvent struct {
	ID        uuid.UUID       `json:"id"`
	AttemptID uuid.UUID       `json:"attempt_id"`
	Type      EventType       `json:"type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// LogEventRequest is the payload for a client-reported integrity event.
// The type is free-form by contract (non-violation bookkeeping types are
// accepted and logged); only the designated violation types are tallied.
type LogEventRequest struct {
	Type    string          `json:"type" binding:"required,min=1,max=64"`
	Details json.RawMessage `json:"details" binding:"omitempty"`
}
