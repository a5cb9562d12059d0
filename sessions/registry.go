package sessions

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
)

// BuildFunc constructs a new session for a tenant. It runs with the tenant locked.
type BuildFunc func(ctx context.Context, tenantID string) (*Session, error)

// Registry maps tenant ids to their session record. Lifecycle changes for a tenant are
// serialized on that tenant's slot; the map lock is only held to find the slot, so one
// tenant's slow creation never blocks another.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	mu      sync.Mutex
	current atomic.Pointer[Session]
}

func NewRegistry() *Registry {
	return &Registry{
		slots: make(map[string]*slot),
	}
}

func (r *Registry) slotFor(tenantID string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[tenantID]
	if !ok {
		s = &slot{}
		r.slots[tenantID] = s
	}
	return s
}

func (r *Registry) lookup(tenantID string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[tenantID]
}

// Get returns the tenant's current record without waiting on in-progress lifecycle work
func (r *Registry) Get(tenantID string) (*Session, bool) {
	s := r.lookup(tenantID)
	if s == nil {
		return nil, false
	}
	sess := s.current.Load()
	return sess, sess != nil
}

// Create replaces the tenant's record with a newly built one, releasing the previous
// record's client first. It fails with ErrAlreadyActive when the current record is ready.
func (r *Registry) Create(ctx context.Context, tenantID string, build BuildFunc) (*Session, error) {
	s := r.slotFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil {
		if _, ready := cur.ReadyClient(); ready {
			return nil, errors.ErrAlreadyActive
		}
		cur.release(&errors.DisconnectedError{Reason: "session replaced"})
		s.current.Store(nil)
	}
	return r.buildLocked(ctx, s, tenantID, build)
}

// GetOrCreate returns the tenant's live record, ready or still pairing, and only builds
// a new one when there is none. Concurrent callers for one tenant share a single build.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string, build BuildFunc) (*Session, bool, error) {
	s := r.slotFor(tenantID)
	if cur := s.current.Load(); cur != nil && cur.Alive() {
		return cur, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.current.Load(); cur != nil {
		if cur.Alive() {
			return cur, false, nil
		}
		cur.release(&errors.DisconnectedError{Reason: "session replaced"})
		s.current.Store(nil)
	}
	sess, err := r.buildLocked(ctx, s, tenantID, build)
	return sess, err == nil, err
}

func (r *Registry) buildLocked(ctx context.Context, s *slot, tenantID string, build BuildFunc) (*Session, error) {
	sess, err := build(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.current.Store(sess)
	return sess, nil
}

// Remove detaches the tenant's record, if any, and runs cleanup with the tenant locked.
// cleanup also runs when there was no record.
func (r *Registry) Remove(tenantID string, cleanup func(old *Session) error) (*Session, error) {
	s := r.slotFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Swap(nil)
	if cleanup == nil {
		return old, nil
	}
	return old, cleanup(old)
}

// WithCurrent runs fn with the tenant locked if sess is still its current record. When fn
// returns true the record is detached before the lock is released. The result reports
// whether fn ran.
func (r *Registry) WithCurrent(tenantID string, sess *Session, fn func() (remove bool)) bool {
	s := r.lookup(tenantID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load() != sess {
		return false
	}
	if fn() {
		s.current.CompareAndSwap(sess, nil)
	}
	return true
}

// Len counts tenants with a record
func (r *Registry) Len() int {
	n := 0
	r.Range(func(*Session) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for every current record in tenant id order until fn returns false
func (r *Registry) Range(fn func(sess *Session) bool) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	slots := make(map[string]*slot, len(r.slots))
	for id, s := range r.slots {
		slots[id] = s
	}
	r.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		sess := slots[id].current.Load()
		if sess == nil {
			continue
		}
		if !fn(sess) {
			return
		}
	}
}
