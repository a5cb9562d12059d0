// Package qrcache holds the latest pairing code per tenant so repeated polls inside the
// TTL reuse one code instead of making the client issue a new one.
package qrcache

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 20 * time.Second
	DefaultTimeout = 15 * time.Second
)

// Generator produces a new pairing code. ctx carries the generation deadline.
type Generator func(ctx context.Context) (string, error)

type entry struct {
	payload     string
	generatedAt time.Time
}

type result struct {
	payload string
	fresh   bool
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	nowFunc func() time.Time
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.timeout = timeout
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// TTL returns how long a payload is served before the generator runs again
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrGenerate returns the tenant's cached payload while it is younger than the TTL.
// Otherwise it runs generator, bounded by the generation timeout, and caches the result.
// Concurrent callers for one tenant share a single generator run. fresh reports whether
// the payload came from a generator run rather than the cache.
func (c *Cache) GetOrGenerate(ctx context.Context, tenantID string, generator Generator) (payload string, fresh bool, err error) {
	if p, ok := c.Peek(tenantID); ok {
		return p, false, nil
	}

	ch := c.group.DoChan(tenantID, func() (interface{}, error) {
		if p, ok := c.Peek(tenantID); ok {
			return result{payload: p}, nil
		}

		// Joined callers share this run, so one caller going away must not cancel it
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		p, err := runBounded(genCtx, generator)
		if err != nil {
			return nil, err
		}
		c.Store(tenantID, p)
		return result{payload: p, fresh: true}, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		r := res.Val.(result)
		return r.payload, r.fresh, nil
	}
}

// runBounded returns ErrQrTimeout when generator outlives ctx, even if it ignores ctx
func runBounded(ctx context.Context, generator Generator) (string, error) {
	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		p, err := generator(ctx)
		done <- outcome{payload: p, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				return "", errors.ErrQrTimeout
			}
			return "", o.err
		}
		return o.payload, nil
	case <-ctx.Done():
		return "", errors.ErrQrTimeout
	}
}

// Store records a payload pushed by the client outside of a generator run
func (c *Cache) Store(tenantID, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = entry{payload: payload, generatedAt: c.nowFunc()}
}

// Peek returns the tenant's payload if it is still inside the TTL
func (c *Cache) Peek(tenantID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tenantID]
	if !ok {
		return "", false
	}
	if c.nowFunc().Sub(e.generatedAt) >= c.ttl {
		return "", false
	}
	return e.payload, true
}

// GeneratedAt returns when the tenant's current payload was cached, expired or not
func (c *Cache) GeneratedAt(tenantID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tenantID]
	return e.generatedAt, ok
}

func (c *Cache) Clear(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}
