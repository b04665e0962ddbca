package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. Transitions are
// strictly forward: assigned → in_progress → completed.
type AttemptStatus string

const (
	AttemptStatusAssigned   AttemptStatus = "assigned"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
)

// Attempt represents one student's attempt at one quiz.
// QuestionOrder and EndsAt are set exactly once, at start; Score is set
// on forced completion or later by teacher grading.
type Attempt struct {
	ID                uuid.UUID     `json:"id"`
	QuizID            uuid.UUID     `json:"quiz_id"`
	StudentID         int           `json:"student_id"`
	Status            AttemptStatus `json:"status"`
	QuestionOrder     []uuid.UUID   `json:"question_order,omitempty"`
	EndsAt            *time.Time    `json:"ends_at,omitempty"`
	Score             *float64      `json:"score,omitempty"`
	EnforceFullscreen bool          `json:"enforce_fullscreen"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// AttemptState is the reconnect view of a running attempt: everything a
// client needs to re-render after a page reload without a second round trip.
type AttemptState struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	Status           AttemptStatus `json:"status"`
	QuestionOrder    []uuid.UUID   `json:"question_order,omitempty"`
	EndsAt           *time.Time    `json:"ends_at,omitempty"`
	RemainingSeconds float64       `json:"remaining_seconds"`
	Answers          []Answer      `json:"answers"`
}
