package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider error codes we act on
const (
	CodeNotInTerminalState = 20009
	CodeNotFound           = 20404
	CodeTooManyRequests    = 20429
	CodeBlacklisted        = 21610
)

// ErrNumberNotFound indicates the provider could not validate a phone number
var ErrNumberNotFound = errors.New("phone number not found")

// Error is a provider failure. Code and Status are zero for network
// failures, in which case Err holds the cause.
type Error struct {
	Code    int
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: %d (http %d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the same request may succeed later
func (e *Error) Transient() bool {
	if e.Err != nil {
		return true
	}
	switch e.Code {
	case CodeTooManyRequests, CodeNotFound:
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient reports whether err is a provider error worth retrying
func IsTransient(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Transient()
}

// IsBlacklisted reports whether the recipient has opted out of messages
func IsBlacklisted(err error) bool {
	return hasCode(err, CodeBlacklisted)
}

// IsNotFound reports whether the provider has no record of the resource
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func hasCode(err error, code int) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == code
}
