package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/rs/zerolog/log"
)

// errBecameReady ends a QR wait because no code is needed any more
var errBecameReady = errors.New("session became ready")

// Session is the in-memory record of one tenant's client. State changes come from the
// session's actor; readers take consistent snapshots.
type Session struct {
	tenantID  string
	client    waclient.Client
	createdAt time.Time

	mu            sync.RWMutex
	state         State
	qrCode        string
	qrGeneratedAt time.Time
	readyAt       time.Time
	released      bool
	failure       error
	changed       chan struct{}

	destroyOnce sync.Once
}

// Snapshot is a point in time copy of a session record
type Snapshot struct {
	TenantID      string    `json:"tenantId"`
	State         State     `json:"state"`
	Active        bool      `json:"active"`
	QRCode        string    `json:"-"`
	QRGeneratedAt time.Time `json:"qrGeneratedAt,omitzero"`
	CreatedAt     time.Time `json:"createdAt"`
	ReadyAt       time.Time `json:"readyAt,omitzero"`
}

func newSession(tenantID string, client waclient.Client, now time.Time) *Session {
	return &Session{
		tenantID:  tenantID,
		client:    client,
		createdAt: now,
		state:     StateInitializing,
		changed:   make(chan struct{}),
	}
}

func (s *Session) TenantID() string {
	return s.tenantID
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		TenantID:      s.tenantID,
		State:         s.state,
		Active:        s.state == StateReady && !s.released,
		QRCode:        s.qrCode,
		QRGeneratedAt: s.qrGeneratedAt,
		CreatedAt:     s.createdAt,
		ReadyAt:       s.readyAt,
	}
}

// ReadyClient returns the client only if the session is ready, reading both under one lock
func (s *Session) ReadyClient() (waclient.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.released {
		return nil, false
	}
	return s.client, true
}

// Err is why the session ended, nil while it is alive
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Alive is false once the session reached a terminal state or was released
func (s *Session) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.released && !s.state.Terminal()
}

// observe returns the current snapshot, a channel closed on the next change and whether
// the session has ended
func (s *Session) observe() (Snapshot, <-chan struct{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), s.changed, s.released || s.state.Terminal()
}

// AwaitQR returns the session's pairing code once one generated at or after notBefore is
// available. It fails with the session's failure if the session ends first and with
// errBecameReady if it pairs.
func (s *Session) AwaitQR(ctx context.Context, notBefore time.Time) (string, error) {
	for {
		s.mu.RLock()
		switch {
		case s.failure != nil:
			err := s.failure
			s.mu.RUnlock()
			return "", err
		case s.state == StateReady:
			s.mu.RUnlock()
			return "", errBecameReady
		case s.qrCode != "" && !s.qrGeneratedAt.Before(notBefore):
			code := s.qrCode
			s.mu.RUnlock()
			return code, nil
		}
		changed := s.changed
		s.mu.RUnlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		}
	}
}

// apply runs an event through the transition table and updates the record
func (s *Session) apply(evt waclient.Event, now time.Time) (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return Step{To: s.state}, false
	}

	step, ok := Transition(s.state, evt.Kind)
	if !ok {
		return step, false
	}

	s.state = step.To
	switch {
	case evt.Kind == waclient.EventPairingCode:
		s.qrCode = evt.Payload
		s.qrGeneratedAt = now
	case step.To == StateReady:
		s.readyAt = now
	case step.To == StateAuthFailed:
		s.failure = fmt.Errorf("%w: %s", errors.ErrAuthFailure, reasonOr(evt.Reason, "pairing rejected"))
	case step.To == StateDisconnected:
		s.failure = &errors.DisconnectedError{Reason: reasonOr(evt.Reason, "connection lost")}
	}
	if step.Effects.Has(EffectClearQR) {
		s.qrCode = ""
		s.qrGeneratedAt = time.Time{}
	}
	s.notifyLocked()
	return step, true
}

// release marks the session ended with reason and destroys its client. Only the first
// reason is kept and the client is destroyed once.
func (s *Session) release(reason error) {
	s.mu.Lock()
	if !s.released {
		s.released = true
		if s.failure == nil {
			s.failure = reason
		}
		s.qrCode = ""
		s.qrGeneratedAt = time.Time{}
		s.notifyLocked()
	}
	s.mu.Unlock()

	s.destroyOnce.Do(func() {
		if err := s.client.Destroy(); err != nil {
			log.Warn().Err(err).Str("tenant", s.tenantID).Msg("client destroy failed")
		}
	})
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
