package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigio/invigio-backend/internal/middleware"
	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/response"
	"github.com/invigio/invigio-backend/internal/service"
	"github.com/invigio/invigio-backend/internal/validator"
)

// ProctorHandler handles the integrity event log endpoints.
type ProctorHandler struct {
	proctorService *service.ProctorService
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(proctorService *service.ProctorService) *ProctorHandler {
	return &ProctorHandler{proctorService: proctorService}
}

// LogEvent godoc
// POST /attempts/:id/events
// Appends one client-reported event. The response tells the client when
// the event (or an already-passed deadline) ended the attempt.
func (h *ProctorHandler) LogEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.LogEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.proctorService.LogEvent(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListEvents godoc
// GET /attempts/:id/events
// Returns the attempt's event log, newest first. Students see their own
// attempts; teachers see attempts of quizzes they own.
func (h *ProctorHandler) ListEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.proctorService.ListEvents(c.Request.Context(), attemptID, claims.UserID, claims.TokenType)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}
