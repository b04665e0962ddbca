package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invigio/invigio-backend/internal/relay"
	"github.com/invigio/invigio-backend/internal/response"
	"github.com/invigio/invigio-backend/internal/service"
)

// failFromError maps service errors onto the response envelope. Unknown
// errors become opaque 500s; the detail stays in the server log.
func failFromError(c *gin.Context, err error) {
	var invalidState *service.InvalidStateError

	switch {
	case errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrQuizNotOpen):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotOpen)
	case errors.As(err, &invalidState):
		response.FailWithMessage(c, http.StatusConflict, response.ErrInvalidState, invalidState.Error())
	case errors.Is(err, relay.ErrNoConsent):
		response.Fail(c, http.StatusForbidden, response.ErrConsentRequired)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
