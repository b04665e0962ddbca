package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/invigio/invigio-backend/internal/model"
)

// Store interfaces consumed by the services. The pgx repositories satisfy
// them; tests substitute in-memory fakes. Conditional transitions
// (StartIf/CompleteIf) must be atomic: of two concurrent callers exactly
// one may observe true.

// AttemptStore persists attempt records.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	StartIf(ctx context.Context, id uuid.UUID, order []uuid.UUID, endsAt time.Time, enforceFullscreen bool) (bool, error)
	CompleteIf(ctx context.Context, id uuid.UUID, score *float64) (bool, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error)
	ListExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error)
}

// AnswerStore persists per-question answers.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.Answer) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	AverageScore(ctx context.Context, attemptID uuid.UUID) (float64, error)
}

// EventStore persists the append-only attempt event log.
type EventStore interface {
	Append(ctx context.Context, e *model.AttemptEvent) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID, limit int) ([]model.AttemptEvent, error)
	ViolationCountsByQuiz(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error)
}

// QuizStore reads quizzes and their question ids.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	QuestionIDs(ctx context.Context, quizID uuid.UUID) ([]uuid.UUID, error)
}
