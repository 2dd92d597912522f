package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the session engine taxonomy.
const (
	CodeValidation        = "VALIDATION"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeLookupUnavailable = "LOOKUP_UNAVAILABLE"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeCommitFailed      = "COMMIT_FAILED"
	CodeNotFound          = "NOT_FOUND"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validation signals bad user input. The state machine turns it into a
// re-prompt without mutating session context.
func Validation(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

// InvalidTransition signals an action inconsistent with the session status.
func InvalidTransition(status string, action string) *Error {
	return New(http.StatusConflict, CodeInvalidTransition, fmt.Errorf("action %q not allowed in status %q", action, status))
}

// LookupUnavailable wraps an external nutrition/vision failure.
func LookupUnavailable(err error) *Error {
	return New(http.StatusBadGateway, CodeLookupUnavailable, err)
}

// SessionExpired signals an action against a session past its expiry.
func SessionExpired() *Error {
	return New(http.StatusGone, CodeSessionExpired, errors.New("session expired, start over"))
}

// CommitFailed wraps a failed atomic save. The session stays in
// SUMMARY_CONFIRM so the user can retry.
func CommitFailed(err error) *Error {
	return New(http.StatusInternalServerError, CodeCommitFailed, err)
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf("%s not found", what))
}

func hasCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func IsValidation(err error) bool        { return hasCode(err, CodeValidation) }
func IsInvalidTransition(err error) bool { return hasCode(err, CodeInvalidTransition) }
func IsLookupUnavailable(err error) bool { return hasCode(err, CodeLookupUnavailable) }
func IsSessionExpired(err error) bool    { return hasCode(err, CodeSessionExpired) }
func IsCommitFailed(err error) bool      { return hasCode(err, CodeCommitFailed) }
func IsNotFound(err error) bool          { return hasCode(err, CodeNotFound) }
