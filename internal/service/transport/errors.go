package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a request failed.
type Kind string

const (
	// KindTransport means the request never completed.
	KindTransport Kind = "transport"
	// KindServer is a non-2xx status other than 401.
	KindServer Kind = "server"
	// KindProtocol is a 2xx status with a body that cannot be decoded.
	KindProtocol Kind = "protocol"
	// KindAuth is a 401; the caller should prompt for a new login.
	KindAuth Kind = "auth"
)

// Fixed messages shown for failures without a server supplied text.
const (
	MsgTransport       = "Network error: the server could not be reached"
	MsgInvalidResponse = "Invalid server response"
)

// Error is the single error type returned by backend calls.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Debug   []string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a failure to complete the request.
func NewTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: MsgTransport, Err: err}
}

// NewProtocolError wraps an undecodable success body.
func NewProtocolError(status int, err error) *Error {
	return &Error{Kind: KindProtocol, Status: status, Message: MsgInvalidResponse, Err: err}
}

// NewStatusError classifies a non-2xx response. message falls back to the
// status text when the server supplied none.
func NewStatusError(status int, message string, debug []string) *Error {
	if message == "" {
		message = StatusText(status)
	}
	kind := KindServer
	if status == http.StatusUnauthorized {
		kind = KindAuth
	}
	return &Error{Kind: kind, Status: status, Message: message, Debug: debug}
}

// StatusText mirrors the status line text of a response.
func StatusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// KindOf returns the classification of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuth reports whether err is a 401 from the backend.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// Message returns the user facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
