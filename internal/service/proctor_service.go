package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/repository"
)

// ProctorService ingests client-reported integrity events and enforces the
// sliding-window violation policy. Violation timestamps live in a Redis
// sorted set per attempt scored by unix millis, so counting a trailing
// window is a range trim plus a cardinality read. The durable event row
// always lands in Postgres first.
type ProctorService struct {
	attempts  AttemptStore
	events    EventStore
	quizzes   QuizStore
	lifecycle *AttemptService
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	attempts AttemptStore,
	events EventStore,
	quizzes QuizStore,
	lifecycle *AttemptService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		attempts:  attempts,
		events:    events,
		quizzes:   quizzes,
		lifecycle: lifecycle,
		rdb:       rdb,
		cfg:       cfg,
		log:       log.With().Str("component", "proctor_service").Logger(),
		now:       time.Now,
	}
}

// LogEventResult tells the client whether its event ended the attempt.
type LogEventResult struct {
	Completed bool                `json:"completed"`
	Reason    model.EventType     `json:"reason,omitempty"`
	Event     *model.AttemptEvent `json:"event,omitempty"`
}

// LogEvent appends one client-reported event to the attempt's log. Every
// type is logged; only violation types count toward the window. Crossing
// the threshold, or reporting against a past-deadline attempt, force-
// completes it and the result says so instead of an error.
func (s *ProctorService) LogEvent(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.LogEventRequest) (*LogEventResult, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != model.AttemptStatusInProgress {
		return nil, &InvalidStateError{Current: attempt.Status}
	}

	now := s.now()
	if attempt.EndsAt != nil && now.After(*attempt.EndsAt) {
		if err := s.lifecycle.ForceComplete(ctx, attempt, model.EventTimeoutSubmit); err != nil {
			return nil, err
		}
		return &LogEventResult{Completed: true, Reason: model.EventTimeoutSubmit}, nil
	}

	eventType := model.EventType(req.Type)
	event := &model.AttemptEvent{
		ID:        uuid.New(),
		AttemptID: attempt.ID,
		Type:      eventType,
		Details:   req.Details,
	}
	if err := s.events.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	if !eventType.IsViolation() {
		return &LogEventResult{Event: event}, nil
	}

	count, err := s.tallyViolation(ctx, attempt.ID, event.ID, now)
	if err != nil {
		// Counting is enforcement, not bookkeeping; a broken tally must
		// not silently let violations through.
		return nil, fmt.Errorf("tally violation: %w", err)
	}

	s.log.Debug().
		Str("attempt_id", attempt.ID.String()).
		Str("event_type", req.Type).
		Int64("window_count", count).
		Msg("Violation recorded")

	if count < int64(s.cfg.ViolationThreshold) {
		return &LogEventResult{Event: event}, nil
	}

	if err := s.lifecycle.ForceComplete(ctx, attempt, model.EventViolationThreshold); err != nil {
		return nil, err
	}
	return &LogEventResult{Completed: true, Reason: model.EventViolationThreshold}, nil
}

// ListEvents returns the attempt's event log, newest first, capped at the
// configured limit. Visible to the attempt's student and to the teacher
// who owns the quiz.
func (s *ProctorService) ListEvents(ctx context.Context, attemptID uuid.UUID, userID int, tokenType TokenType) ([]model.AttemptEvent, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	switch tokenType {
	case TokenTypeStudent:
		if attempt.StudentID != userID {
			return nil, ErrForbidden
		}
	case TokenTypeTeacher:
		quiz, err := s.quizzes.GetByID(ctx, attempt.QuizID)
		if err != nil {
			return nil, fmt.Errorf("get quiz: %w", err)
		}
		if quiz.TeacherID != userID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	events, err := s.events.ListByAttempt(ctx, attemptID, s.cfg.EventLogLimit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.AttemptEvent{}
	}
	return events, nil
}

// WithClock overrides the service clock. Test hook.
func (s *ProctorService) WithClock(now func() time.Time) *ProctorService {
	s.now = now
	return s
}

// tallyViolation records one violation in the attempt's trailing window and
// returns how many the window now holds. ZADD the new event, trim entries
// older than the window floor, count the remainder.
func (s *ProctorService) tallyViolation(ctx context.Context, attemptID, eventID uuid.UUID, now time.Time) (int64, error) {
	key := config.CacheKey.AttemptViolationsKey(attemptID.String())
	floor := now.Add(-s.cfg.ViolationWindow).UnixMilli()

	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: eventID.String(),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(floor, 10))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, s.cfg.ViolationWindow+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (s *ProctorService) getOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
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
