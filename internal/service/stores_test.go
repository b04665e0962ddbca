package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/repository"
)

// In-memory store fakes. Mutex-guarded so the concurrency tests can hammer
// the conditional transitions the same way Postgres would arbitrate them.

type memAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt)}
}

func (s *memAttemptStore) put(a *model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.ID] = &cp
}

func (s *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAttemptStore) StartIf(_ context.Context, id uuid.UUID, order []uuid.UUID, endsAt time.Time, enforceFullscreen bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status != model.AttemptStatusAssigned {
		return false, nil
	}
	a.Status = model.AttemptStatusInProgress
	a.QuestionOrder = order
	a.EndsAt = &endsAt
	a.EnforceFullscreen = enforceFullscreen
	a.UpdatedAt = time.Now()
	return true, nil
}

func (s *memAttemptStore) CompleteIf(_ context.Context, id uuid.UUID, score *float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Status = model.AttemptStatusCompleted
	a.Score = score
	a.UpdatedAt = time.Now()
	return true, nil
}

func (s *memAttemptStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memAttemptStore) ListExpiredInProgress(_ context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.Status == model.AttemptStatusInProgress && a.EndsAt != nil && a.EndsAt.Before(cutoff) {
			out = append(out, *a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memAnswerStore struct {
	mu      sync.Mutex
	answers map[uuid.UUID]map[uuid.UUID]*model.Answer // attempt -> question -> answer
	fail    error
}

func newMemAnswerStore() *memAnswerStore {
	return &memAnswerStore{answers: make(map[uuid.UUID]map[uuid.UUID]*model.Answer)}
}

func (s *memAnswerStore) Upsert(_ context.Context, a *model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	byQ, ok := s.answers[a.AttemptID]
	if !ok {
		byQ = make(map[uuid.UUID]*model.Answer)
		s.answers[a.AttemptID] = byQ
	}
	if prev, ok := byQ[a.QuestionID]; ok {
		a.ID = prev.ID
		a.Score = prev.Score
		a.Feedback = prev.Feedback
	} else {
		a.ID = uuid.New()
	}
	a.UpdatedAt = time.Now()
	cp := *a
	byQ[a.QuestionID] = &cp
	return nil
}

func (s *memAnswerStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for _, a := range s.answers[attemptID] {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memAnswerStore) AverageScore(_ context.Context, attemptID uuid.UUID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	var n int
	for _, a := range s.answers[attemptID] {
		if a.Score != nil {
			sum += *a.Score
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (s *memAnswerStore) setScore(attemptID, questionID uuid.UUID, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.answers[attemptID][questionID]; ok {
		a.Score = &score
	}
}

type memEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID][]model.AttemptEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[uuid.UUID][]model.AttemptEvent)}
}

func (s *memEventStore) Append(_ context.Context, e *model.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now()
	s.events[e.AttemptID] = append(s.events[e.AttemptID], *e)
	return nil
}

func (s *memEventStore) ListByAttempt(_ context.Context, attemptID uuid.UUID, limit int) ([]model.AttemptEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.events[attemptID]
	var out []model.AttemptEvent
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *memEventStore) ViolationCountsByQuiz(_ context.Context, _ uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for attemptID, events := range s.events {
		for _, e := range events {
			if e.Type.IsViolation() {
				counts[attemptID]++
			}
		}
	}
	return counts, nil
}

func (s *memEventStore) typesFor(attemptID uuid.UUID) []model.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EventType
	for _, e := range s.events[attemptID] {
		out = append(out, e.Type)
	}
	return out
}

type memQuizStore struct {
	mu        sync.Mutex
	quizzes   map[uuid.UUID]*model.Quiz
	questions map[uuid.UUID][]uuid.UUID
}

func newMemQuizStore() *memQuizStore {
	return &memQuizStore{
		quizzes:   make(map[uuid.UUID]*model.Quiz),
		questions: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *memQuizStore) put(q *model.Quiz, questionIDs []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.quizzes[q.ID] = &cp
	s.questions[q.ID] = questionIDs
}

func (s *memQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *memQuizStore) QuestionIDs(_ context.Context, quizID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[quizID], nil
}
