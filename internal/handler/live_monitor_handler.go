package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/middleware"
	"github.com/invigio/invigio-backend/internal/response"
	"github.com/invigio/invigio-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// LiveMonitorHandler streams attempt lifecycle updates for a quiz to its
// owning teacher over SSE.
type LiveMonitorHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	events         service.EventStore
	log            zerolog.Logger
}

// NewLiveMonitorHandler creates a new LiveMonitorHandler.
func NewLiveMonitorHandler(rdb *redis.Client, attemptService *service.AttemptService, events service.EventStore, log zerolog.Logger) *LiveMonitorHandler {
	return &LiveMonitorHandler{
		rdb:            rdb,
		attemptService: attemptService,
		events:         events,
		log:            log.With().Str("component", "live_monitor_handler").Logger(),
	}
}

// MonitorQuizSSE godoc
// GET /monitoring/quizzes/:quiz_id/live
// Sends a snapshot of the quiz's attempts, then forwards live lifecycle
// notifications from the quiz's Redis channel.
func (h *LiveMonitorHandler) MonitorQuizSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	// Build the snapshot before committing to the SSE content type so an
	// authz failure still produces a normal error response. Ownership is
	// enforced by the snapshot query itself.
	snapshot, err := h.buildSnapshot(reqCtx, quizID, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Writer.Write([]byte("data: "))
	c.Writer.Write(snapshot)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizMonitorChannel(quizID.String()))
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().
		Str("quiz_id", quizID.String()).
		Int("teacher_id", claims.UserID).
		Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// buildSnapshot assembles the initial state: every attempt of the quiz
// plus per-attempt violation totals.
func (h *LiveMonitorHandler) buildSnapshot(reqCtx context.Context, quizID uuid.UUID, teacherID int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(reqCtx, snapshotTimeout)
	defer cancel()

	attempts, err := h.attemptService.ListByQuiz(ctx, quizID, teacherID)
	if err != nil {
		return nil, err
	}

	violations, err := h.events.ViolationCountsByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	type attemptRow struct {
		AttemptID  uuid.UUID `json:"attempt_id"`
		StudentID  int       `json:"student_id"`
		Status     string    `json:"status"`
		Score      *float64  `json:"score,omitempty"`
		Violations int64     `json:"violations"`
	}

	rows := make([]attemptRow, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		rows = append(rows, attemptRow{
			AttemptID:  a.ID,
			StudentID:  a.StudentID,
			Status:     string(a.Status),
			Score:      a.Score,
			Violations: violations[a.ID],
		})
	}

	return json.Marshal(map[string]any{
		"type":     "snapshot",
		"quiz_id":  quizID,
		"attempts": rows,
	})
}
