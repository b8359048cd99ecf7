package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrInvalidSubject     = fmt.Errorf("invalid subject identifier")
	ErrSelfTarget         = fmt.Errorf("you cannot message yourself")
	ErrNotFound           = fmt.Errorf("not found")
	ErrEmptyText          = fmt.Errorf("message content is required")
	ErrTextTooLong        = fmt.Errorf("message content is too long")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrStoreUnavailable   = fmt.Errorf("store unavailable")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSlowConsumer       = fmt.Errorf("connection outbox full")
	ErrNotConnected       = fmt.Errorf("not connected")
	ErrCanceled           = fmt.Errorf("call canceled by disconnect")
	ErrTransportLost      = fmt.Errorf("transport lost")
	ErrOffline            = fmt.Errorf("offline: reconnect attempts exhausted")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
)

// Wire codes shared by the HTTP API and the websocket protocol.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeSelfTarget      = "self_target"
	CodeNotFound        = "not_found"
	CodeInvalid         = "invalid_request"
	CodeForbidden       = "forbidden"
	CodeConflict        = "conflict"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

var codes = []struct {
	err    error
	code   string
	status int
}{
	{ErrUnauthenticated, CodeUnauthenticated, http.StatusUnauthorized},
	{ErrInvalidCredentials, CodeUnauthenticated, http.StatusUnauthorized},
	{ErrSelfTarget, CodeSelfTarget, http.StatusBadRequest},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrEmptyText, CodeInvalid, http.StatusBadRequest},
	{ErrTextTooLong, CodeInvalid, http.StatusUnprocessableEntity},
	{ErrInvalidSubject, CodeInvalid, http.StatusBadRequest},
	{ErrInvalidPassword, CodeInvalid, http.StatusBadRequest},
	{ErrInvalidPayload, CodeInvalid, http.StatusBadRequest},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrUserAlreadyExists, CodeConflict, http.StatusConflict},
	{ErrStoreUnavailable, CodeUnavailable, http.StatusServiceUnavailable},
}

// Code returns the stable wire code for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// HTTPStatus maps err to the status code returned by the REST API.
func HTTPStatus(err error) int {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

// RemoteRejected is returned by the client when the server refused a call.
// It unwraps to the matching sentinel so callers can still use errors.Is.
type RemoteRejected struct {
	Code   string
	Reason string
}

func (e *RemoteRejected) Error() string {
	return fmt.Sprintf("remote rejected (%s): %s", e.Code, e.Reason)
}

func (e *RemoteRejected) Unwrap() error {
	switch e.Code {
	case CodeUnauthenticated:
		return ErrUnauthenticated
	case CodeSelfTarget:
		return ErrSelfTarget
	case CodeNotFound:
		return ErrNotFound
	case CodeForbidden:
		return ErrForbidden
	case CodeUnavailable:
		return ErrStoreUnavailable
	}
	return nil
}

// FromCode rebuilds a rejection received over the wire.
func FromCode(code, reason string) error {
	return &RemoteRejected{Code: code, Reason: reason}
}
