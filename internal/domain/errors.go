package domain

import "errors"

var (
	ErrUnknownStatus = errors.New("unknown status")
	ErrTerminalRun   = errors.New("run is in a terminal state")
)

// ValidationError reports a missing or malformed field before anything is persisted.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Invalid builds a *ValidationError.
func Invalid(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
