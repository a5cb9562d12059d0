package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session gateway
var (
	// Session lifecycle errors
	ErrSessionNotReady = errors.New("session not ready")
	ErrAlreadyActive   = errors.New("session already active")
	ErrQrTimeout       = errors.New("timed out waiting for qr code")
	ErrAuthFailure     = errors.New("authentication failed")
	ErrDisconnected    = errors.New("session disconnected")

	// Messaging errors
	ErrInvalidDestination = errors.New("invalid destination")
	ErrSendFailed         = errors.New("send failed")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")

	// Request errors
	ErrInvalidTenant  = errors.New("invalid tenant")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
)

// SendError carries the underlying cause of a failed message send.
// It matches ErrSendFailed with errors.Is.
type SendError struct {
	Destination string
	Cause       error
}

func (e *SendError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("send to %s failed", e.Destination)
	}
	return fmt.Sprintf("send to %s failed: %v", e.Destination, e.Cause)
}

func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

// DisconnectedError reports why the messaging client dropped the session.
// It matches ErrDisconnected with errors.Is.
type DisconnectedError struct {
	Reason string
}

func (e *DisconnectedError) Error() string {
	if e.Reason == "" {
		return ErrDisconnected.Error()
	}
	return ErrDisconnected.Error() + ": " + e.Reason
}

func (e *DisconnectedError) Is(target error) bool {
	return target == ErrDisconnected
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a passthrough to the standard library so callers only need this package
func New(text string) error {
	return errors.New(text)
}
