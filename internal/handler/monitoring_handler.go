package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigio/invigio-backend/internal/middleware"
	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/response"
	"github.com/invigio/invigio-backend/internal/service"
	"github.com/invigio/invigio-backend/internal/validator"
)

// MonitoringHandler handles the webcam consent and frame endpoints.
type MonitoringHandler struct {
	monitoringService *service.MonitoringService
}

// NewMonitoringHandler creates a new MonitoringHandler.
func NewMonitoringHandler(monitoringService *service.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{monitoringService: monitoringService}
}

// RequestAccess godoc
// POST /monitoring/request
// Teacher asks to observe one student's webcam for a quiz they own.
func (h *MonitoringHandler) RequestAccess(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.RequestAccessRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	cr, err := h.monitoringService.RequestAccess(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"request": cr})
}

// PendingRequest godoc
// GET /monitoring/consent-requests?quiz_id=...
// Student polls for a pending webcam request addressed to them.
func (h *MonitoringHandler) PendingRequest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Query("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	req := h.monitoringService.PendingRequest(claims.UserID, quizID)
	response.Success(c, http.StatusOK, gin.H{"request": req})
}

// RespondConsent godoc
// POST /monitoring/consent
// Student approves or denies the pending webcam request.
func (h *MonitoringHandler) RespondConsent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.RespondConsentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	consent, err := h.monitoringService.RespondConsent(claims.UserID, &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"consent": consent})
}

// SubmitFrame godoc
// POST /monitoring/frames
// Student uploads one webcam frame. Rejected without an approved grant.
func (h *MonitoringHandler) SubmitFrame(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitFrameRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.monitoringService.SubmitFrame(claims.UserID, &req, time.Now()); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"accepted": true})
}

// RevokeConsent godoc
// DELETE /monitoring/consent?quiz_id=...
// Student withdraws a previously granted webcam consent mid-stream.
func (h *MonitoringHandler) RevokeConsent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Query("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	h.monitoringService.Revoke(claims.UserID, quizID)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
