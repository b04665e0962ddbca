package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestAccessRequest is a teacher's request to observe a student's webcam.
type RequestAccessRequest struct {
	QuizID    uuid.UUID `json:"quiz_id" binding:"required"`
	StudentID int       `json:"student_id" binding:"required"`
}

// RespondConsentRequest is the student's answer to a pending webcam request.
// Approved is a pointer so an explicit false survives binding.
type RespondConsentRequest struct {
	QuizID    uuid.UUID `json:"quiz_id" binding:"required"`
	TeacherID int       `json:"teacher_id" binding:"required"`
	Approved  *bool     `json:"approved" binding:"required"`
}

// SubmitFrameRequest carries one webcam snapshot from the student's client.
// CapturedAt is client-reported and optional; the relay timestamps arrival.
type SubmitFrameRequest struct {
	QuizID     uuid.UUID  `json:"quiz_id" binding:"required"`
	DataURL    string     `json:"data_url" binding:"required,max=2097152"`
	CapturedAt *time.Time `json:"captured_at" binding:"omitempty"`
}
