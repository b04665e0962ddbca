package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz represents a published quiz as the attempt lifecycle sees it.
// Authoring, question content and publication are owned by the quiz
// management collaborator; this service only reads quizzes.
type Quiz struct {
	ID                uuid.UUID  `json:"id"`
	TeacherID         int        `json:"teacher_id"`
	Title             string     `json:"title"`
	DurationMinutes   int        `json:"duration_minutes"`
	ScheduledStart    *time.Time `json:"scheduled_start,omitempty"`
	EnforceFullscreen bool       `json:"enforce_fullscreen"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Question carries only what the attempt lifecycle needs: identity and
// ordering within its quiz.
type Question struct {
	ID       uuid.UUID `json:"id"`
	QuizID   uuid.UUID `json:"quiz_id"`
	Position int       `json:"position"`
}
