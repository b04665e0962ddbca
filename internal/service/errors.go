package service

import (
	"errors"
	"fmt"

	"github.com/invigio/invigio-backend/internal/model"
)

// Expected, user-facing conditions. Handlers map these to structured
// responses; anything else is an internal error.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrForbidden       = errors.New("caller does not own this resource")
	ErrAttemptExpired  = errors.New("attempt deadline has passed")
	ErrQuizNotOpen     = errors.New("quiz scheduled start is in the future")
)

// InvalidStateError rejects an operation that is not valid for the
// attempt's current lifecycle state. The current state is included so the
// client can resynchronize its view.
type InvalidStateError struct {
	Current model.AttemptStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("operation not valid while attempt is %q", e.Current)
}
