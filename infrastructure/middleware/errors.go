package middleware

import (
	"fmt"
	"net/http"
)

// recoveryError is the minimal structured error the recovery middleware
// needs to render a JSON envelope for a recovered panic.
type recoveryError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *recoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// errInternal creates an internal server error for a recovered panic.
func errInternal(message string, err error) *recoveryError {
	return &recoveryError{
		Code:       "SVC_5001",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
