// Package sessions owns the per-tenant session lifecycle: creating a client, driving it
// through pairing, persisting its credentials once ready and tearing it down.
package sessions

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/persistence"
	"github.com/jrsteele09/wa-session-gateway/qrcache"
	"github.com/jrsteele09/wa-session-gateway/tenants"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultLogoutTimeout = 10 * time.Second

var errManagerClosed = errors.New("session manager is shut down")

// CredentialSync moves credential material between the client's directory and the durable store
type CredentialSync interface {
	CredentialDir(tenantID string) string
	Restore(ctx context.Context, tenantID string) (persistence.RestoreResult, error)
	Persist(ctx context.Context, tenantID string, flusher waclient.Flusher) (persistence.PersistResult, error)
	Purge(ctx context.Context, tenantID string) error
}

var _ CredentialSync = (*persistence.Synchronizer)(nil)

// QRResult is the answer to a pairing code poll. Active means the tenant is already paired.
type QRResult struct {
	Active      bool
	Code        string
	Fresh       bool
	GeneratedAt time.Time
}

type Manager struct {
	registry *Registry
	qr       *qrcache.Cache
	sync     CredentialSync
	factory  waclient.Factory

	nowFunc       func() time.Time
	logoutTimeout time.Duration

	baseCtx  context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	actors   sync.WaitGroup
	persists sync.WaitGroup
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogoutTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.logoutTimeout = timeout
	}
}

// WithRegistry shares an existing registry, mainly so tests can inspect it
func WithRegistry(registry *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = registry
	}
}

func NewManager(factory waclient.Factory, sync CredentialSync, qr *qrcache.Cache, options ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:      NewRegistry(),
		qr:            qr,
		sync:          sync,
		factory:       factory,
		nowFunc:       time.Now,
		logoutTimeout: defaultLogoutTimeout,
		baseCtx:       ctx,
		cancel:        cancel,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// QR returns the tenant's pairing code, starting a session if none is running. A code
// younger than the cache TTL is reused. On ErrQrTimeout the session keeps running so a
// later poll sees a late code or readiness.
func (m *Manager) QR(ctx context.Context, tenantID string) (QRResult, error) {
	if err := tenants.ValidateID(tenantID); err != nil {
		return QRResult{}, err
	}
	sess, _, err := m.registry.GetOrCreate(ctx, tenantID, m.build)
	if err != nil {
		return QRResult{}, err
	}
	if _, ready := sess.ReadyClient(); ready {
		return QRResult{Active: true}, nil
	}

	notBefore := m.nowFunc().Add(-m.qr.TTL())
	code, fresh, err := m.qr.GetOrGenerate(ctx, tenantID, func(gctx context.Context) (string, error) {
		return sess.AwaitQR(gctx, notBefore)
	})
	if err != nil {
		if errors.Is(err, errBecameReady) {
			return QRResult{Active: true}, nil
		}
		return QRResult{}, err
	}

	res := QRResult{Code: code, Fresh: fresh}
	if at, ok := m.qr.GeneratedAt(tenantID); ok {
		res.GeneratedAt = at
	}
	return res, nil
}

// Start begins a new pairing cycle, replacing any session that is not ready
func (m *Manager) Start(ctx context.Context, tenantID string) (Snapshot, error) {
	if err := tenants.ValidateID(tenantID); err != nil {
		return Snapshot{}, err
	}
	sess, err := m.registry.Create(ctx, tenantID, m.build)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Status reports the tenant's session, ok is false when there is none
func (m *Manager) Status(tenantID string) (Snapshot, bool) {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return Snapshot{TenantID: tenantID}, false
	}
	return sess.Snapshot(), true
}

// ReadyClient returns the tenant's client or ErrSessionNotReady
func (m *Manager) ReadyClient(tenantID string) (waclient.Client, error) {
	sess, ok := m.registry.Get(tenantID)
	if !ok {
		return nil, errors.ErrSessionNotReady
	}
	client, ready := sess.ReadyClient()
	if !ready {
		return nil, errors.ErrSessionNotReady
	}
	return client, nil
}

// List returns a snapshot of every live session ordered by tenant id
func (m *Manager) List() []Snapshot {
	out := make([]Snapshot, 0)
	m.registry.Range(func(sess *Session) bool {
		out = append(out, sess.Snapshot())
		return true
	})
	return out
}

// Logout signs the tenant out, destroys its client and purges its stored credentials.
// It is idempotent and purges even when no session is running.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	if err := tenants.ValidateID(tenantID); err != nil {
		return err
	}
	_, err := m.registry.Remove(tenantID, func(old *Session) error {
		if old != nil {
			m.logoutClient(ctx, old)
			old.release(&errors.DisconnectedError{Reason: "logged out"})
		}
		m.qr.Clear(tenantID)
		return m.sync.Purge(ctx, tenantID)
	})
	if err != nil {
		return errors.Wrapf(err, "[Manager Logout] %s", tenantID)
	}
	log.Info().Str("tenant", tenantID).Msg("session logged out")
	return nil
}

func (m *Manager) logoutClient(ctx context.Context, sess *Session) {
	lc, ok := sess.client.(waclient.LogoutCapable)
	if !ok {
		return
	}
	if _, ready := sess.ReadyClient(); !ready {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
	defer cancel()
	if err := lc.Logout(lctx); err != nil {
		log.Warn().Err(err).Str("tenant", sess.tenantID).Msg("remote logout failed, purging local credentials anyway")
	}
}

// Watch streams snapshots of the tenant's session, starting one if needed. The channel
// closes once the session is ready or has ended, or when ctx is done.
func (m *Manager) Watch(ctx context.Context, tenantID string) (<-chan Snapshot, error) {
	if err := tenants.ValidateID(tenantID); err != nil {
		return nil, err
	}
	sess, _, err := m.registry.GetOrCreate(ctx, tenantID, m.build)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		for {
			snap, changed, ended := sess.observe()
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if ended || snap.State == StateReady {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close waits for in-flight credential uploads, then releases every client without purging
// so sessions resume from storage on the next start
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var waitErr error
	if err := waitGroup(ctx, &m.persists); err != nil {
		waitErr = errors.Wrapf(err, "[Manager Close] waiting for persists")
	}
	m.cancel()

	log.Info().Int("sessions", m.registry.Len()).Msg("releasing sessions")
	m.registry.Range(func(sess *Session) bool {
		_, _ = m.registry.Remove(sess.tenantID, func(old *Session) error {
			if old != nil {
				old.release(&errors.DisconnectedError{Reason: "gateway shutting down"})
			}
			return nil
		})
		return true
	})

	if err := waitGroup(ctx, &m.actors); err != nil && waitErr == nil {
		waitErr = errors.Wrapf(err, "[Manager Close] waiting for sessions")
	}
	return waitErr
}

// build restores credentials, constructs the client, starts its actor and initializes it.
// Runs with the tenant locked.
func (m *Manager) build(ctx context.Context, tenantID string) (*Session, error) {
	if m.closed.Load() {
		return nil, errManagerClosed
	}
	ctx = context.WithoutCancel(ctx)
	logger := log.With().Str("tenant", tenantID).Logger()

	// a cached code belongs to the client being replaced
	m.qr.Clear(tenantID)

	if res, err := m.sync.Restore(ctx, tenantID); err != nil {
		logger.Warn().Err(err).Msg("credential restore failed, pairing fresh")
	} else if !res.Restored {
		logger.Debug().Msg("no stored credentials, pairing fresh")
	}

	dir := m.sync.CredentialDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "[Manager build] credential dir")
	}

	client, err := m.factory(ctx, tenantID, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "[Manager build] client for %s", tenantID)
	}

	sess := newSession(tenantID, client, m.nowFunc())
	m.actors.Add(1)
	go m.runActor(sess, logger)

	if err := client.Initialize(ctx); err != nil {
		sess.release(fmt.Errorf("%w: %v", errors.ErrAuthFailure, err))
		return nil, errors.Wrapf(err, "[Manager build] initialize %s", tenantID)
	}
	logger.Info().Msg("session started")
	return sess, nil
}

// runActor is the only writer of the session's state. Each event is handled with the
// tenant locked and only while the session is still the tenant's current record.
func (m *Manager) runActor(sess *Session, logger zerolog.Logger) {
	defer m.actors.Done()
	for evt := range sess.client.Events() {
		handled := m.registry.WithCurrent(sess.tenantID, sess, func() bool {
			return m.handleEvent(sess, evt, logger)
		})
		if !handled {
			logger.Debug().Stringer("event", evt.Kind).Msg("event for a detached session dropped")
		}
	}
	logger.Debug().Msg("session actor stopped")
}

func (m *Manager) handleEvent(sess *Session, evt waclient.Event, logger zerolog.Logger) (remove bool) {
	from := sess.State()
	step, ok := sess.apply(evt, m.nowFunc())
	if !ok {
		logger.Debug().Stringer("event", evt.Kind).Stringer("state", from).Msg("event ignored")
		return false
	}
	logger.Info().Stringer("event", evt.Kind).Stringer("from", from).Stringer("to", step.To).Str("reason", evt.Reason).Msg("session transition")

	if step.Effects.Has(EffectCacheQR) {
		m.qr.Store(sess.tenantID, evt.Payload)
	}
	if step.Effects.Has(EffectClearQR) {
		m.qr.Clear(sess.tenantID)
	}
	if step.Effects.Has(EffectPersist) {
		m.startPersist(sess, logger)
	}
	if step.Effects.Has(EffectDestroyClient) {
		sess.release(sess.Err())
	}
	if step.Effects.Has(EffectPurge) {
		if err := m.sync.Purge(m.baseCtx, sess.tenantID); err != nil {
			logger.Error().Err(err).Msg("failed to purge credentials after disconnect")
		}
	}
	return step.Effects.Has(EffectRemove)
}

// startPersist uploads credentials in the background. A failed upload leaves the session ready.
func (m *Manager) startPersist(sess *Session, logger zerolog.Logger) {
	m.persists.Add(1)
	go func() {
		defer m.persists.Done()

		flusher, _ := sess.client.(waclient.Flusher)
		var persistErr error
		ran := m.registry.WithCurrent(sess.tenantID, sess, func() bool {
			if _, ready := sess.ReadyClient(); !ready {
				return false
			}
			_, persistErr = m.sync.Persist(m.baseCtx, sess.tenantID, flusher)
			return false
		})
		switch {
		case !ran:
			logger.Debug().Msg("session detached before credentials were persisted")
		case persistErr != nil:
			logger.Error().Err(persistErr).Msg("failed to persist credentials, session stays ready")
		}
	}()
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
