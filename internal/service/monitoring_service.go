package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/relay"
	"github.com/invigio/invigio-backend/internal/repository"
)

// MonitoringService fronts the webcam relay with ownership checks: only
// the quiz's owning teacher may ask to watch, and only the asked student
// may answer or publish frames.
type MonitoringService struct {
	quizzes QuizStore
	relay   *relay.Relay
	log     zerolog.Logger
}

// NewMonitoringService creates a new MonitoringService.
func NewMonitoringService(quizzes QuizStore, r *relay.Relay, log zerolog.Logger) *MonitoringService {
	return &MonitoringService{
		quizzes: quizzes,
		relay:   r,
		log:     log.With().Str("component", "monitoring_service").Logger(),
	}
}

// RequestAccess records a teacher's ask to observe a student in a quiz the
// teacher owns. Re-asking refreshes the pending request and revokes any
// earlier grant.
func (s *MonitoringService) RequestAccess(ctx context.Context, teacherID int, req *model.RequestAccessRequest) (relay.ConsentRequest, error) {
	if err := s.checkQuizOwner(ctx, req.QuizID, teacherID); err != nil {
		return relay.ConsentRequest{}, err
	}

	key := relay.Key{QuizID: req.QuizID.String(), StudentID: req.StudentID}
	cr := s.relay.Request(key, teacherID)

	s.log.Info().
		Str("quiz_id", req.QuizID.String()).
		Int("teacher_id", teacherID).
		Int("student_id", req.StudentID).
		Msg("Webcam access requested")

	return cr, nil
}

// PendingRequest returns the live consent request addressed to a student
// for a quiz, or nil when none is waiting.
func (s *MonitoringService) PendingRequest(studentID int, quizID uuid.UUID) *relay.ConsentRequest {
	key := relay.Key{QuizID: quizID.String(), StudentID: studentID}
	req, ok := s.relay.PendingFor(key)
	if !ok {
		return nil
	}
	return &req
}

// RespondConsent records the student's answer to a pending request. The
// teacher named in the payload must match the one who asked.
func (s *MonitoringService) RespondConsent(studentID int, req *model.RespondConsentRequest) (relay.Consent, error) {
	key := relay.Key{QuizID: req.QuizID.String(), StudentID: studentID}

	pending, ok := s.relay.PendingFor(key)
	if !ok || pending.TeacherID != req.TeacherID {
		return relay.Consent{}, relay.ErrNoConsent
	}

	consent, err := s.relay.Respond(key, *req.Approved)
	if err != nil {
		return relay.Consent{}, err
	}

	s.log.Info().
		Str("quiz_id", req.QuizID.String()).
		Int("student_id", studentID).
		Bool("approved", consent.Approved).
		Msg("Webcam consent answered")

	return consent, nil
}

// SubmitFrame publishes one webcam frame from the student. Fails with
// relay.ErrNoConsent unless an approved grant covers the pair.
func (s *MonitoringService) SubmitFrame(studentID int, req *model.SubmitFrameRequest, now time.Time) error {
	capturedAt := now
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	key := relay.Key{QuizID: req.QuizID.String(), StudentID: studentID}
	return s.relay.Publish(key, relay.Frame{
		QuizID:     req.QuizID.String(),
		StudentID:  studentID,
		DataURL:    req.DataURL,
		CapturedAt: capturedAt,
	})
}

// Revoke withdraws the student's own grant for a pair.
func (s *MonitoringService) Revoke(studentID int, quizID uuid.UUID) {
	s.relay.Revoke(relay.Key{QuizID: quizID.String(), StudentID: studentID})
}

// Attach connects the consented teacher to a student's frame stream after
// re-verifying quiz ownership. Detach with the same observer when done.
func (s *MonitoringService) Attach(ctx context.Context, teacherID int, quizID uuid.UUID, studentID int) (*relay.Observer, error) {
	if err := s.checkQuizOwner(ctx, quizID, teacherID); err != nil {
		return nil, err
	}
	return s.relay.Attach(relay.Key{QuizID: quizID.String(), StudentID: studentID}, teacherID)
}

// Detach releases an observer obtained from Attach.
func (s *MonitoringService) Detach(quizID uuid.UUID, studentID int, obs *relay.Observer) {
	s.relay.Detach(relay.Key{QuizID: quizID.String(), StudentID: studentID}, obs)
}

func (s *MonitoringService) checkQuizOwner(ctx context.Context, quizID uuid.UUID, teacherID int) error {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("get quiz: %w", err)
	}
	if quiz.TeacherID != teacherID {
		return ErrForbidden
	}
	return nil
}
