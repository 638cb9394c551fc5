package core

import "errors"

// Error codes surfaced to clients on refused operations.
const (
	ErrCodeNotRegistered = "not_registered"
	ErrCodeInChannel     = "already_in_channel"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnknownType   = "unknown_type"
)

var (
	ErrNotRegistered = errors.New("connection has not registered")
	ErrInChannel     = errors.New("connection is already in a channel")
	ErrUnknownConn   = errors.New("unknown connection")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
