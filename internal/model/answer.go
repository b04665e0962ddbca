package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer holds a student's response to one question within one attempt.
// Submitting again for the same (attempt, question) pair replaces the
// previous value while the attempt is in progress. Score and Feedback
// are assigned by the teacher after completion.
type Answer struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	AnswerText string    `json:"answer_text,omitempty"`
	AnswerCode string    `json:"answer_code,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	Feedback   *string   `json:"feedback,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubmitAnswerRequest is the payload for upserting a single answer.
type SubmitAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	AnswerText string    `json:"answer_text" binding:"omitempty,max=20000"`
	AnswerCode string    `json:"answer_code" binding:"omitempty,max=65536"`
}

// CompleteAttemptRequest is the payload for a manual submission. Answers
// are upserted best-effort before the attempt is closed.
type CompleteAttemptRequest struct {
	Answers []SubmitAnswerRequest `json:"answers" binding:"omitempty,dive"`
}
