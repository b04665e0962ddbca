package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/model"
)

type proctorFixture struct {
	svc       *ProctorService
	lifecycle *AttemptService
	attempts  *memAttemptStore
	events    *memEventStore

	attempt *model.Attempt
	quiz    *model.Quiz

	mu  sync.Mutex
	now time.Time
}

func (f *proctorFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *proctorFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newProctorFixture(t *testing.T) *proctorFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		ViolationWindow:    120 * time.Second,
		ViolationThreshold: 3,
		EventLogLimit:      500,
	}

	f := &proctorFixture{
		attempts: newMemAttemptStore(),
		events:   newMemEventStore(),
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	quizzes := newMemQuizStore()
	answers := newMemAnswerStore()

	f.quiz = &model.Quiz{
		ID:              uuid.New(),
		TeacherID:       testTeacherID,
		Title:           "History Final",
		DurationMinutes: 60,
	}
	quizzes.put(f.quiz, nil)

	endsAt := f.now.Add(60 * time.Minute)
	f.attempt = &model.Attempt{
		ID:        uuid.New(),
		QuizID:    f.quiz.ID,
		StudentID: testStudentID,
		Status:    model.AttemptStatusInProgress,
		EndsAt:    &endsAt,
	}
	f.attempts.put(f.attempt)

	f.lifecycle = NewAttemptService(f.attempts, answers, quizzes, f.events, nil, zerolog.Nop()).
		WithClock(f.clock)
	f.svc = NewProctorService(f.attempts, f.events, quizzes, f.lifecycle, rdb, cfg, zerolog.Nop()).
		WithClock(f.clock)
	return f
}

func (f *proctorFixture) logViolation(t *testing.T, eventType model.EventType) *LogEventResult {
	t.Helper()
	result, err := f.svc.LogEvent(context.Background(), f.attempt.ID, testStudentID, &model.LogEventRequest{
		Type: string(eventType),
	})
	require.NoError(t, err)
	return result
}

func TestLogEvent_ThresholdInsideWindowForcesCompletion(t *testing.T) {
	f := newProctorFixture(t)

	result := f.logViolation(t, model.EventTabBlur)
	assert.False(t, result.Completed)

	f.advance(30 * time.Second)
	result = f.logViolation(t, model.EventFullscreenExit)
	assert.False(t, result.Completed)

	f.advance(30 * time.Second)
	result = f.logViolation(t, model.EventVisibilityHidden)
	require.True(t, result.Completed)
	assert.Equal(t, model.EventViolationThreshold, result.Reason)

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Zero(t, *stored.Score)

	assert.Contains(t, f.events.typesFor(f.attempt.ID), model.EventViolationThreshold)
}

func TestLogEvent_SpreadViolationsStayBelowThreshold(t *testing.T) {
	f := newProctorFixture(t)

	// Each violation falls outside the trailing window of the next pair,
	// so the count never reaches three.
	for range 4 {
		result := f.logViolation(t, model.EventTabBlur)
		assert.False(t, result.Completed)
		f.advance(90 * time.Second)
	}

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusInProgress, stored.Status)
}

func TestLogEvent_NonViolationTypesLoggedWithoutTally(t *testing.T) {
	f := newProctorFixture(t)

	for range 5 {
		result, err := f.svc.LogEvent(context.Background(), f.attempt.ID, testStudentID, &model.LogEventRequest{
			Type: "network_reconnect",
		})
		require.NoError(t, err)
		assert.False(t, result.Completed)
	}

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusInProgress, stored.Status)
	assert.Len(t, f.events.typesFor(f.attempt.ID), 5)
}

func TestLogEvent_PastDeadlineReportsTimeout(t *testing.T) {
	f := newProctorFixture(t)
	f.advance(61 * time.Minute)

	result, err := f.svc.LogEvent(context.Background(), f.attempt.ID, testStudentID, &model.LogEventRequest{
		Type: string(model.EventTabBlur),
	})
	require.NoError(t, err)
	require.True(t, result.Completed)
	assert.Equal(t, model.EventTimeoutSubmit, result.Reason)

	// The late violation itself is not logged; the timeout marker is.
	types := f.events.typesFor(f.attempt.ID)
	assert.NotContains(t, types, model.EventTabBlur)
	assert.Contains(t, types, model.EventTimeoutSubmit)
}

func TestLogEvent_RejectsNonRunningAttempt(t *testing.T) {
	f := newProctorFixture(t)
	f.attempt.Status = model.AttemptStatusCompleted
	f.attempts.put(f.attempt)

	_, err := f.svc.LogEvent(context.Background(), f.attempt.ID, testStudentID, &model.LogEventRequest{
		Type: string(model.EventTabBlur),
	})

	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, model.AttemptStatusCompleted, invalidState.Current)
}

func TestLogEvent_WrongStudentForbidden(t *testing.T) {
	f := newProctorFixture(t)

	_, err := f.svc.LogEvent(context.Background(), f.attempt.ID, 999, &model.LogEventRequest{
		Type: string(model.EventTabBlur),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListEvents_AuthzMatrix(t *testing.T) {
	f := newProctorFixture(t)
	f.logViolation(t, model.EventTabBlur)

	ctx := context.Background()

	events, err := f.svc.ListEvents(ctx, f.attempt.ID, testStudentID, TokenTypeStudent)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = f.svc.ListEvents(ctx, f.attempt.ID, testTeacherID, TokenTypeTeacher)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = f.svc.ListEvents(ctx, f.attempt.ID, 999, TokenTypeStudent)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ListEvents(ctx, f.attempt.ID, 999, TokenTypeTeacher)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListEvents_NewestFirst(t *testing.T) {
	f := newProctorFixture(t)
	f.logViolation(t, model.EventTabBlur)
	f.advance(time.Second)
	f.logViolation(t, model.EventFullscreenExit)

	events, err := f.svc.ListEvents(context.Background(), f.attempt.ID, testStudentID, TokenTypeStudent)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventFullscreenExit, events[0].Type)
	assert.Equal(t, model.EventTabBlur, events[1].Type)
}
