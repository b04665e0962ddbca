package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigio/invigio-backend/internal/model"
)

// EventRepository handles the append-only attempt event log.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts one event. Events are never updated or deleted.
func (r *EventRepository) Append(ctx context.Context, e *model.AttemptEvent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempt_events (id, attempt_id, event_type, details)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		e.ID, e.AttemptID, e.Type, e.Details,
	).Scan(&e.CreatedAt)
}

// ListByAttempt returns the attempt's events newest first, capped.
func (r *EventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID, limit int) ([]model.AttemptEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, event_type, details, created_at
		 FROM attempt_events
		 WHERE attempt_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, attemptID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AttemptEvent
	for rows.Next() {
		var e model.AttemptEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.Type, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ViolationCountsByQuiz returns, per attempt of the quiz, how many
// violation-type events were logged. Feeds the live monitor snapshot.
func (r *EventRepository) ViolationCountsByQuiz(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, COUNT(e.id)
		 FROM attempts a
		 JOIN attempt_events e ON e.attempt_id = a.id
		 WHERE a.quiz_id = $1
		   AND e.event_type IN ('tab_blur', 'visibility_hidden', 'fullscreen_exit', 'suspicious_face')
		 GROUP BY a.id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
