package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/middleware"
	"github.com/invigio/invigio-backend/internal/service"
	ws "github.com/invigio/invigio-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler handles the teacher's WebSocket frame stream.
type StreamHandler struct {
	monitoringService *service.MonitoringService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(monitoringService *service.MonitoringService, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		monitoringService: monitoringService,
		log:               log.With().Str("component", "stream_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// FrameStream godoc
// WS /monitoring/stream?quiz_id=...&student_id=...&token=...
// Upgrades to WebSocket and forwards the consented student's webcam frames
// to the observing teacher. Closes when consent is revoked or the teacher
// disconnects.
func (h *StreamHandler) FrameStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quizID, err := uuid.Parse(c.Query("quiz_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz ID"})
		return
	}
	studentID, err := strconv.Atoi(c.Query("student_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	obs, err := h.monitoringService.Attach(c.Request.Context(), claims.UserID, quizID, studentID)
	if err != nil {
		ws.WriteError(conn, "no approved consent for this student")
		return
	}
	defer h.monitoringService.Detach(quizID, studentID, obs)

	wsLog := h.log.With().
		Int("teacher_id", claims.UserID).
		Int("student_id", studentID).
		Str("quiz_id", quizID.String()).
		Logger()

	wsLog.Info().Msg("Teacher attached to frame stream")

	// The reader goroutine surfaces client disconnects and answers pings;
	// frames only flow server → client.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case frame, ok := <-obs.Frames:
			if !ok {
				// Consent revoked or observer replaced.
				wsLog.Info().Msg("Frame stream closed by relay")
				return
			}
			err := ws.WriteTyped(conn, ws.FrameResponse{
				Event:      ws.EventFrame,
				StudentID:  frame.StudentID,
				DataURL:    frame.DataURL,
				CapturedAt: frame.CapturedAt,
				ReceivedAt: frame.ReceivedAt,
			})
			if err != nil {
				wsLog.Debug().Err(err).Msg("Frame write failed")
				return
			}
		case <-keepalive.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			wsLog.Info().Msg("Teacher disconnected")
			return
		}
	}
}
