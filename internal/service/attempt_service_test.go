package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigio/invigio-backend/internal/model"
)

const (
	testStudentID = 101
	testTeacherID = 1
)

type attemptFixture struct {
	svc      *AttemptService
	attempts *memAttemptStore
	answers  *memAnswerStore
	events   *memEventStore
	quizzes  *memQuizStore

	quiz        *model.Quiz
	questionIDs []uuid.UUID
	attempt     *model.Attempt

	mu  sync.Mutex
	now time.Time
}

func (f *attemptFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *attemptFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	f := &attemptFixture{
		attempts: newMemAttemptStore(),
		answers:  newMemAnswerStore(),
		events:   newMemEventStore(),
		quizzes:  newMemQuizStore(),
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	f.quiz = &model.Quiz{
		ID:              uuid.New(),
		TeacherID:       testTeacherID,
		Title:           "Algebra Midterm",
		DurationMinutes: 30,
	}
	f.questionIDs = []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	f.quizzes.put(f.quiz, f.questionIDs)

	f.attempt = &model.Attempt{
		ID:        uuid.New(),
		QuizID:    f.quiz.ID,
		StudentID: testStudentID,
		Status:    model.AttemptStatusAssigned,
	}
	f.attempts.put(f.attempt)

	f.svc = NewAttemptService(f.attempts, f.answers, f.quizzes, f.events, nil, zerolog.Nop()).
		WithClock(f.clock)
	return f
}

func (f *attemptFixture) start(t *testing.T) *StartResult {
	t.Helper()
	result, err := f.svc.Start(context.Background(), f.attempt.ID, testStudentID)
	require.NoError(t, err)
	return result
}

func TestStart_TransitionsAndFreezesOrder(t *testing.T) {
	f := newAttemptFixture(t)

	result := f.start(t)

	assert.Equal(t, model.AttemptStatusInProgress, result.Status)
	assert.Equal(t, f.clock().Add(30*time.Minute), result.EndsAt)
	assert.ElementsMatch(t, f.questionIDs, result.QuestionOrder)

	stored, err := f.attempts.GetByID(context.Background(), f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, stored.Status)
	assert.Equal(t, result.QuestionOrder, stored.QuestionOrder)

	assert.Contains(t, f.events.typesFor(f.attempt.ID), model.EventAttemptStart)
}

func TestStart_RejectsNonAssignedStates(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	_, err := f.svc.Start(context.Background(), f.attempt.ID, testStudentID)

	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, model.AttemptStatusInProgress, invalidState.Current)
}

func TestStart_WrongStudentForbidden(t *testing.T) {
	f := newAttemptFixture(t)

	_, err := f.svc.Start(context.Background(), f.attempt.ID, 999)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStart_UnknownAttempt(t *testing.T) {
	f := newAttemptFixture(t)

	_, err := f.svc.Start(context.Background(), uuid.New(), testStudentID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestStart_BeforeScheduledStart(t *testing.T) {
	f := newAttemptFixture(t)
	opens := f.clock().Add(time.Hour)
	f.quiz.ScheduledStart = &opens
	f.quizzes.put(f.quiz, f.questionIDs)

	_, err := f.svc.Start(context.Background(), f.attempt.ID, testStudentID)
	assert.ErrorIs(t, err, ErrQuizNotOpen)

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusAssigned, stored.Status)
}

func TestStart_ConcurrentCallsSingleWinner(t *testing.T) {
	f := newAttemptFixture(t)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Start(context.Background(), f.attempt.ID, testStudentID); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSubmitAnswer_ReplacesPriorValue(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	ctx := context.Background()
	questionID := f.questionIDs[0]

	_, err := f.svc.SubmitAnswer(ctx, f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
		QuestionID: questionID,
		AnswerText: "first draft",
	})
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
		QuestionID: questionID,
		AnswerText: "final answer",
	})
	require.NoError(t, err)

	answers, err := f.answers.ListByAttempt(ctx, f.attempt.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "final answer", answers[0].AnswerText)
}

func TestSubmitAnswer_BeforeStartInvalid(t *testing.T) {
	f := newAttemptFixture(t)

	_, err := f.svc.SubmitAnswer(context.Background(), f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
		QuestionID: f.questionIDs[0],
	})

	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, model.AttemptStatusAssigned, invalidState.Current)
}

func TestSubmitAnswer_PastDeadlineForcesTimeout(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)
	f.advance(31 * time.Minute)

	_, err := f.svc.SubmitAnswer(context.Background(), f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
		QuestionID: f.questionIDs[0],
		AnswerText: "too late",
	})
	assert.ErrorIs(t, err, ErrAttemptExpired)

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Zero(t, *stored.Score)

	assert.Contains(t, f.events.typesFor(f.attempt.ID), model.EventTimeoutSubmit)
}

func TestComplete_ManualLeavesScoreUnset(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	attempt, err := f.svc.Complete(context.Background(), f.attempt.ID, testStudentID, &model.CompleteAttemptRequest{
		Answers: []model.SubmitAnswerRequest{
			{QuestionID: f.questionIDs[0], AnswerText: "x = 4"},
			{QuestionID: f.questionIDs[1], AnswerText: "x = -2"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusCompleted, attempt.Status)
	assert.Nil(t, attempt.Score)

	answers, _ := f.answers.ListByAttempt(context.Background(), f.attempt.ID)
	assert.Len(t, answers, 2)
	assert.Contains(t, f.events.typesFor(f.attempt.ID), model.EventManualSubmit)
}

func TestComplete_RepeatCallRejected(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	ctx := context.Background()
	_, err := f.svc.Complete(ctx, f.attempt.ID, testStudentID, &model.CompleteAttemptRequest{})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.attempt.ID, testStudentID, &model.CompleteAttemptRequest{})

	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, model.AttemptStatusCompleted, invalidState.Current)
}

func TestComplete_SavesRemainingAnswersOnPartialFailure(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	// Upserts fail, completion still proceeds.
	f.answers.fail = errors.New("connection reset")

	attempt, err := f.svc.Complete(context.Background(), f.attempt.ID, testStudentID, &model.CompleteAttemptRequest{
		Answers: []model.SubmitAnswerRequest{{QuestionID: f.questionIDs[0], AnswerText: "lost"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusCompleted, attempt.Status)
}

func TestForceComplete_AveragesScoredAnswers(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	ctx := context.Background()
	for _, q := range f.questionIDs {
		_, err := f.svc.SubmitAnswer(ctx, f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
			QuestionID: q,
			AnswerText: "answer",
		})
		require.NoError(t, err)
	}
	// Two of three answers scored; the unscored one is excluded from the mean.
	f.answers.setScore(f.attempt.ID, f.questionIDs[0], 80)
	f.answers.setScore(f.attempt.ID, f.questionIDs[1], 60)

	attempt, err := f.attempts.GetByID(ctx, f.attempt.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ForceComplete(ctx, attempt, model.EventViolationThreshold))

	stored, _ := f.attempts.GetByID(ctx, f.attempt.ID)
	assert.Equal(t, model.AttemptStatusCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.InDelta(t, 70, *stored.Score, 0.001)

	assert.Contains(t, f.events.typesFor(f.attempt.ID), model.EventViolationThreshold)
}

func TestForceComplete_IdempotentAfterLostRace(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	ctx := context.Background()
	attempt, err := f.attempts.GetByID(ctx, f.attempt.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ForceComplete(ctx, attempt, model.EventTimeoutSubmit))
	require.NoError(t, f.svc.ForceComplete(ctx, attempt, model.EventTimeoutSubmit))

	// Only the winning call appended its reason event.
	count := 0
	for _, typ := range f.events.typesFor(f.attempt.ID) {
		if typ == model.EventTimeoutSubmit {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGetState_ReturnsRemainingTimeAndAnswers(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	ctx := context.Background()
	_, err := f.svc.SubmitAnswer(ctx, f.attempt.ID, testStudentID, &model.SubmitAnswerRequest{
		QuestionID: f.questionIDs[0],
		AnswerText: "saved",
	})
	require.NoError(t, err)

	f.advance(10 * time.Minute)

	state, err := f.svc.GetState(ctx, f.attempt.ID, testStudentID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusInProgress, state.Status)
	assert.InDelta(t, (20 * time.Minute).Seconds(), state.RemainingSeconds, 0.001)
	assert.Len(t, state.Answers, 1)
}

func TestGetState_ExpiredReportsZeroWithoutMutation(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)
	f.advance(45 * time.Minute)

	state, err := f.svc.GetState(context.Background(), f.attempt.ID, testStudentID)
	require.NoError(t, err)

	assert.Zero(t, state.RemainingSeconds)
	// Read path never completes the attempt.
	assert.Equal(t, model.AttemptStatusInProgress, state.Status)
}

func TestListByQuiz_RequiresOwningTeacher(t *testing.T) {
	f := newAttemptFixture(t)

	_, err := f.svc.ListByQuiz(context.Background(), f.quiz.ID, 999)
	assert.ErrorIs(t, err, ErrForbidden)

	attempts, err := f.svc.ListByQuiz(context.Background(), f.quiz.ID, testTeacherID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestSweepExpired_ClosesOnlyPastDeadline(t *testing.T) {
	f := newAttemptFixture(t)
	f.start(t)

	fresh := &model.Attempt{
		ID:        uuid.New(),
		QuizID:    f.quiz.ID,
		StudentID: 102,
		Status:    model.AttemptStatusAssigned,
	}
	f.attempts.put(fresh)

	f.advance(31 * time.Minute)

	closed, err := f.svc.SweepExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stored, _ := f.attempts.GetByID(context.Background(), f.attempt.ID)
	assert.Equal(t, model.AttemptStatusCompleted, stored.Status)

	untouched, _ := f.attempts.GetByID(context.Background(), fresh.ID)
	assert.Equal(t, model.AttemptStatusAssigned, untouched.Status)
}
