package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigio/invigio-backend/internal/model"
)

// QuizRepository handles read access to quizzes and their question ids.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz by its id.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, teacher_id, title, duration_minutes, scheduled_start, enforce_fullscreen, created_at, updated_at
		 FROM quizzes
		 WHERE id = $1`, id,
	).Scan(&q.ID, &q.TeacherID, &q.Title, &q.DurationMinutes, &q.ScheduledStart, &q.EnforceFullscreen, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// QuestionIDs returns the quiz's question ids in authoring order.
func (r *QuizRepository) QuestionIDs(ctx context.Context, quizID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions
		 WHERE quiz_id = $1
		 ORDER BY position ASC`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a quiz. Used by seed tooling; production quizzes are
// written by the quiz management collaborator.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (teacher_id, title, duration_minutes, scheduled_start, enforce_fullscreen)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		q.TeacherID, q.Title, q.DurationMinutes, q.ScheduledStart, q.EnforceFullscreen,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// CreateQuestion inserts a question stub. Seed tooling only.
func (r *QuizRepository) CreateQuestion(ctx context.Context, question *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (quiz_id, position)
		 VALUES ($1, $2)
		 RETURNING id`,
		question.QuizID, question.Position,
	).Scan(&question.ID)
}
