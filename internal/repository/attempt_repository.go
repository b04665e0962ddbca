package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigio/invigio-backend/internal/model"
)

// AttemptRepository handles attempt data access. Status transitions are
// single-statement conditional updates so concurrent callers race safely:
// whoever updates zero rows lost.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, quiz_id, student_id, status, question_order, ends_at, score, enforce_fullscreen, created_at, updated_at`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	var orderRaw []byte
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &orderRaw, &a.EndsAt, &a.Score, &a.EnforceFullscreen, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(orderRaw) > 0 {
		if err := json.Unmarshal(orderRaw, &a.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	return a, nil
}

// GetByID retrieves an attempt by its id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// StartIf transitions an attempt from assigned to in_progress, recording
// the frozen question order, absolute deadline and fullscreen policy.
// Returns false when the attempt was not in the assigned state (the caller
// re-reads to report the current state).
func (r *AttemptRepository) StartIf(ctx context.Context, id uuid.UUID, order []uuid.UUID, endsAt time.Time, enforceFullscreen bool) (bool, error) {
	orderRaw, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("encode question order: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, question_order = $3, ends_at = $4, enforce_fullscreen = $5, updated_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, model.AttemptStatusInProgress, orderRaw, endsAt, enforceFullscreen, model.AttemptStatusAssigned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteIf transitions an attempt from in_progress to completed. A nil
// score leaves grading to the teacher (manual submission); forced
// completion passes the computed snapshot. Returns false when the attempt
// was already completed — the second completer of a race observes this.
func (r *AttemptRepository) CompleteIf(ctx context.Context, id uuid.UUID, score *float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, score = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, model.AttemptStatusCompleted, score, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByQuiz retrieves all attempts for a quiz, newest first.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE quiz_id = $1
		 ORDER BY created_at DESC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ListExpiredInProgress returns in_progress attempts whose deadline is
// already behind the cutoff. Used by the optional expiry sweep; lazy
// expiry on mutating calls does not depend on it.
func (r *AttemptRepository) ListExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE status = $1 AND ends_at < $2
		 ORDER BY ends_at ASC
		 LIMIT $3`,
		model.AttemptStatusInProgress, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// CreateAssigned inserts a fresh assigned attempt for a (quiz, student)
// pair. Assignment normally happens when a quiz is published to a class;
// this exists for seed tooling and tests.
func (r *AttemptRepository) CreateAssigned(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (quiz_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.QuizID, a.StudentID, model.AttemptStatusAssigned,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}
