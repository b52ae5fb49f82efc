package kite

import (
	"errors"
	"fmt"
)

// APIError is a structured error returned by the broker API. The error_type
// field drives retry and shutdown decisions: token failures must stop the
// session, network failures may be retried.
type APIError struct {
	Status    int    // HTTP status code
	ErrorType string // e.g. "TokenException", "NetworkException", "OrderException"
	Message   string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("kite: %s (%s, http %d)", e.Message, e.ErrorType, e.Status)
}

// Transient reports whether the request may be retried as-is
func (e *APIError) Transient() bool {
	switch e.ErrorType {
	case "NetworkException", "GatewayException":
		return true
	}
	return e.Status == 429 || e.Status >= 500
}

// Auth reports whether the error means the session token is no longer valid
func (e *APIError) Auth() bool {
	return e.ErrorType == "TokenException" || e.Status == 403
}

// transportError wraps a failure before any HTTP response was received.
// Always transient.
type transportError struct {
	err error
}

func (e *transportError) Error() string   { return "kite: transport: " + e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Transient() bool { return true }

// IsAuthError reports whether err is an authentication failure that requires
// a new access token.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Auth()
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}
