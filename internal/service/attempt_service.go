package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/repository"
)

// AttemptService owns the attempt lifecycle: assigned → in_progress →
// completed, forward-only. The deadline is server-authoritative and
// checked lazily on every mutating call — no background scheduler is
// required for correctness.
type AttemptService struct {
	attempts AttemptStore
	answers  AnswerStore
	quizzes  QuizStore
	events   EventStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	answers AnswerStore,
	quizzes QuizStore,
	events EventStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		answers:  answers,
		quizzes:  quizzes,
		events:   events,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// StartResult carries everything the client needs to render the running
// attempt without a second round trip.
type StartResult struct {
	AttemptID     uuid.UUID           `json:"attempt_id"`
	Status        model.AttemptStatus `json:"status"`
	QuestionOrder []uuid.UUID         `json:"question_order"`
	EndsAt        time.Time           `json:"ends_at"`
}

// Start transitions an assigned attempt to in_progress: freezes a
// uniformly random question order, computes the absolute deadline from the
// quiz duration, and records the fullscreen policy.
func (s *AttemptService) Start(ctx context.Context, attemptID uuid.UUID, studentID int) (*StartResult, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != model.AttemptStatusAssigned {
		return nil, &InvalidStateError{Current: attempt.Status}
	}

	quiz, err := s.quizzes.GetByID(ctx, attempt.QuizID)
	if err != nil {
		// The quiz can be deleted between assignment and start.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	now := s.now()
	if quiz.ScheduledStart != nil && quiz.ScheduledStart.After(now) {
		return nil, ErrQuizNotOpen
	}

	questionIDs, err := s.quizzes.QuestionIDs(ctx, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}

	// Fisher-Yates: every permutation equally likely.
	order := make([]uuid.UUID, len(questionIDs))
	copy(order, questionIDs)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	endsAt := now.Add(time.Duration(quiz.DurationMinutes) * time.Minute)

	started, err := s.attempts.StartIf(ctx, attempt.ID, order, endsAt, quiz.EnforceFullscreen)
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	if !started {
		// A concurrent start won; report whatever state it produced.
		current, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("re-read attempt: %w", err)
		}
		return nil, &InvalidStateError{Current: current.Status}
	}

	s.cacheDeadline(ctx, attempt.ID, endsAt)

	s.appendEvent(ctx, attempt.ID, model.EventAttemptStart, map[string]any{
		"ends_at":        endsAt,
		"question_count": len(order),
	})
	s.publishMonitor(ctx, attempt.QuizID, map[string]any{
		"type":       "attempt_started",
		"attempt_id": attempt.ID,
		"student_id": attempt.StudentID,
		"ends_at":    endsAt,
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("student_id", studentID).
		Time("ends_at", endsAt).
		Int("questions", len(order)).
		Msg("Attempt started")

	return &StartResult{
		AttemptID:     attempt.ID,
		Status:        model.AttemptStatusInProgress,
		QuestionOrder: order,
		EndsAt:        endsAt,
	}, nil
}

// SubmitAnswer upserts one answer for a running attempt. If the deadline
// has passed the attempt is force-completed first and the call fails with
// ErrAttemptExpired.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SubmitAnswerRequest) (*model.Answer, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != model.AttemptStatusInProgress {
		return nil, &InvalidStateError{Current: attempt.Status}
	}

	if expired, err := s.expireIfPastDeadline(ctx, attempt); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrAttemptExpired
	}

	answer := &model.Answer{
		AttemptID:  attempt.ID,
		QuestionID: req.QuestionID,
		AnswerText: req.AnswerText,
		AnswerCode: req.AnswerCode,
	}
	if err := s.answers.Upsert(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	s.appendEvent(ctx, attempt.ID, model.EventAnswerSubmit, map[string]any{
		"question_id": req.QuestionID,
	})

	return answer, nil
}

// Complete is the student's manual submission. Provided answers are
// upserted best-effort (one failure does not abort the rest), then the
// attempt is closed with a NULL score — grading happens later. A repeat
// call observes completed and fails with InvalidState, never re-scores.
func (s *AttemptService) Complete(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.CompleteAttemptRequest) (*model.Attempt, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != model.AttemptStatusInProgress {
		return nil, &InvalidStateError{Current: attempt.Status}
	}

	if expired, err := s.expireIfPastDeadline(ctx, attempt); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrAttemptExpired
	}

	for i := range req.Answers {
		a := &model.Answer{
			AttemptID:  attempt.ID,
			QuestionID: req.Answers[i].QuestionID,
			AnswerText: req.Answers[i].AnswerText,
			AnswerCode: req.Answers[i].AnswerCode,
		}
		if err := s.answers.Upsert(ctx, a); err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Str("question_id", a.QuestionID.String()).
				Msg("Failed to save answer during completion, continuing")
		}
	}

	completed, err := s.attempts.CompleteIf(ctx, attempt.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !completed {
		// Lost a race against another complete or a forced completion.
		return nil, &InvalidStateError{Current: model.AttemptStatusCompleted}
	}

	s.appendEvent(ctx, attempt.ID, model.EventManualSubmit, map[string]any{
		"answer_count": len(req.Answers),
	})
	s.publishMonitor(ctx, attempt.QuizID, map[string]any{
		"type":       "attempt_completed",
		"attempt_id": attempt.ID,
		"student_id": attempt.StudentID,
		"reason":     model.EventManualSubmit,
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("student_id", studentID).
		Int("answers", len(req.Answers)).
		Msg("Attempt submitted manually")

	return s.attempts.GetByID(ctx, attempt.ID)
}

// ForceComplete closes an attempt on the system's initiative (deadline
// expiry or violation threshold). Unlike manual submission it snapshots a
// score immediately: the mean of currently scored answers, 0 when none
// are scored. Losing the completion race is not an error — the attempt is
// closed either way.
func (s *AttemptService) ForceComplete(ctx context.Context, attempt *model.Attempt, reason model.EventType) error {
	score, err := s.answers.AverageScore(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("average score: %w", err)
	}

	completed, err := s.attempts.CompleteIf(ctx, attempt.ID, &score)
	if err != nil {
		return fmt.Errorf("force complete: %w", err)
	}
	if !completed {
		return nil
	}

	s.appendEvent(ctx, attempt.ID, reason, map[string]any{
		"score": score,
	})
	s.publishMonitor(ctx, attempt.QuizID, map[string]any{
		"type":       "attempt_completed",
		"attempt_id": attempt.ID,
		"student_id": attempt.StudentID,
		"reason":     reason,
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("reason", string(reason)).
		Float64("score", score).
		Msg("Attempt force-completed")

	return nil
}

// GetState returns the reconnect view: status, remaining seconds and the
// answers saved so far. Read-only — an expired attempt is reported with
// zero remaining time but not mutated here.
func (s *AttemptService) GetState(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptState, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	state := &model.AttemptState{
		AttemptID:     attempt.ID,
		Status:        attempt.Status,
		QuestionOrder: attempt.QuestionOrder,
		EndsAt:        attempt.EndsAt,
	}

	if attempt.Status == model.AttemptStatusInProgress && attempt.EndsAt != nil {
		deadline := s.deadlineFor(ctx, attempt)
		if remaining := deadline.Sub(s.now()); remaining > 0 {
			state.RemainingSeconds = remaining.Seconds()
		}
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	state.Answers = answers

	return state, nil
}

// ListByQuiz returns all attempts of a quiz for its owning teacher.
func (s *AttemptService) ListByQuiz(ctx context.Context, quizID uuid.UUID, teacherID int) ([]model.Attempt, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if quiz.TeacherID != teacherID {
		return nil, ErrForbidden
	}
	return s.attempts.ListByQuiz(ctx, quizID)
}

// SweepExpired force-completes attempts whose deadline already passed.
// Purely an optimization over lazy expiry; returns how many were closed.
func (s *AttemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.attempts.ListExpiredInProgress(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	closed := 0
	for i := range expired {
		if err := s.ForceComplete(ctx, &expired[i], model.EventTimeoutSubmit); err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", expired[i].ID.String()).
				Msg("Expiry sweep failed for attempt")
			continue
		}
		closed++
	}
	return closed, nil
}

// WithClock overrides the service clock. Test hook.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

// getOwned loads an attempt and verifies the caller is its student.
func (s *AttemptService) getOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrForbidden
	}
	return attempt, nil
}

// expireIfPastDeadline applies lazy expiry: when the deadline has passed,
// the attempt is force-completed with a timeout reason. Returns true when
// the attempt is no longer accepting mutations.
func (s *AttemptService) expireIfPastDeadline(ctx context.Context, attempt *model.Attempt) (bool, error) {
	if attempt.EndsAt == nil || !s.now().After(*attempt.EndsAt) {
		return false, nil
	}
	if err := s.ForceComplete(ctx, attempt, model.EventTimeoutSubmit); err != nil {
		return false, err
	}
	return true, nil
}

// appendEvent writes a lifecycle marker. Event-log failures are logged but
// never fail the operation that produced them.
func (s *AttemptService) appendEvent(ctx context.Context, attemptID uuid.UUID, eventType model.EventType, details map[string]any) {
	raw, _ := json.Marshal(details)
	e := &model.AttemptEvent{
		ID:        uuid.New(),
		AttemptID: attemptID,
		Type:      eventType,
		Details:   raw,
	}
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Str("event_type", string(eventType)).
			Msg("Failed to append lifecycle event")
	}
}

// publishMonitor pushes a notification to the quiz's live monitor channel.
// Best effort.
func (s *AttemptService) publishMonitor(ctx context.Context, quizID uuid.UUID, payload map[string]any) {
	if s.rdb == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	if err := s.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(quizID.String()), raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Monitor publish failed")
	}
}

// cacheDeadline stores the deadline in Redis so state reads skip the DB.
// The key outlives the attempt by an hour and then evicts itself.
func (s *AttemptService) cacheDeadline(ctx context.Context, attemptID uuid.UUID, endsAt time.Time) {
	if s.rdb == nil {
		return
	}
	ttl := endsAt.Sub(s.now()) + time.Hour
	key := config.CacheKey.AttemptDeadlineKey(attemptID.String())
	if err := s.rdb.Set(ctx, key, endsAt.Unix(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to cache deadline")
	}
}

// deadlineFor reads the cached deadline, falling back to the persisted one
// and self-healing the cache on a miss.
func (s *AttemptService) deadlineFor(ctx context.Context, attempt *model.Attempt) time.Time {
	if s.rdb == nil {
		return *attempt.EndsAt
	}

	key := config.CacheKey.AttemptDeadlineKey(attempt.ID.String())
	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if unix, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
			return time.Unix(unix, 0)
		}
	} else if errors.Is(err, redis.Nil) {
		s.cacheDeadline(ctx, attempt.ID, *attempt.EndsAt)
	}
	return *attempt.EndsAt
}
