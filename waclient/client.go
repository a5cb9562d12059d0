// Package waclient defines the boundary between the session manager and the automated
// messaging client. The manager only ever sees this interface and its event stream.
package waclient

import (
	"context"
	"time"
)

type EventKind int

const (
	EventPairingCode EventKind = iota + 1
	EventReady
	EventAuthFailure
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing_code"
	case EventReady:
		return "ready"
	case EventAuthFailure:
		return "auth_failure"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification from the client.
// Payload is set for pairing codes, Reason for auth failures and disconnects.
type Event struct {
	Kind    EventKind
	Payload string
	Reason  string
	At      time.Time
}

type SendResult struct {
	MessageID string
	Timestamp time.Time
}

// Client is an automated messaging client bound to one tenant's credential directory
type Client interface {
	// Initialize starts the client. It is called once per construction and must not block
	// waiting for pairing; progress is reported on Events.
	Initialize(ctx context.Context) error

	// Events is closed after Destroy
	Events() <-chan Event

	// SendMessage is only valid after EventReady
	SendMessage(ctx context.Context, destination, body string) (SendResult, error)

	// Destroy releases every resource. Safe before ready and safe to call twice.
	Destroy() error
}

// Flusher is implemented by clients that can force their credential material to disk
type Flusher interface {
	Flush(ctx context.Context) error
}

// LogoutCapable is implemented by clients that can revoke the linked device remotely
type LogoutCapable interface {
	Logout(ctx context.Context) error
}

// Factory builds a client for tenantID that keeps its credential material in credentialDir
type Factory func(ctx context.Context, tenantID, credentialDir string) (Client, error)
