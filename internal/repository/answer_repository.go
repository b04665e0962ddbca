package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigio/invigio-backend/internal/model"
)

// AnswerRepository handles answer data access. Answers are keyed by
// (attempt_id, question_id); a repeat submission replaces the prior value.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert inserts or replaces the answer for the attempt/question pair.
// Teacher-assigned score and feedback are left untouched on replace.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO answers (attempt_id, question_id, answer_text, answer_code)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET answer_text = EXCLUDED.answer_text,
		               answer_code = EXCLUDED.answer_code,
		               updated_at  = NOW()
		 RETURNING id, updated_at`,
		a.AttemptID, a.QuestionID, a.AnswerText, a.AnswerCode,
	).Scan(&a.ID, &a.UpdatedAt)
}

// ListByAttempt returns all answers for an attempt in question-submission
// order (oldest update first).
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, answer_text, answer_code, score, feedback, updated_at
		 FROM answers
		 WHERE attempt_id = $1
		 ORDER BY updated_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.AnswerText, &a.AnswerCode, &a.Score, &a.Feedback, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// AverageScore returns the mean of the attempt's teacher-scored answers,
// 0 when none are scored yet.
func (r *AnswerRepository) AverageScore(ctx context.Context, attemptID uuid.UUID) (float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(score), 0)
		 FROM answers
		 WHERE attempt_id = $1 AND score IS NOT NULL`, attemptID,
	).Scan(&avg)
	return avg, err
}
