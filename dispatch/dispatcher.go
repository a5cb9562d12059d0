// Package dispatch sends messages through a tenant's ready client.
package dispatch

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/tenants"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultSendTimeout = 30 * time.Second
	DefaultConcurrency = 4
)

// Destinations are bare international numbers: digits only, 11 to 15 long, no leading zero
var destinationPattern = regexp.MustCompile(`^[1-9][0-9]{10,14}$`)

// Failure categories reported per bulk item
const (
	CategoryInvalidDestination = "invalid_destination"
	CategoryNotReady           = "not_ready"
	CategorySendFailed         = "send_failed"
	CategoryTimeout            = "timeout"
)

// ClientSource hands out a tenant's client only while its session is ready
type ClientSource interface {
	ReadyClient(tenantID string) (waclient.Client, error)
}

// Outcome is the result of one item of a bulk send
type Outcome struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Category  string `json:"category,omitempty"`
}

type Dispatcher struct {
	sessions    ClientSource
	sendTimeout time.Duration
	concurrency int
}

type Option func(*Dispatcher)

func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

// WithConcurrency bounds how many bulk items are in flight at once
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.concurrency = n
	}
}

func New(sessions ClientSource, options ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions:    sessions,
		sendTimeout: DefaultSendTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range options {
		opt(d)
	}
	if d.concurrency <= 0 {
		d.concurrency = 1
	}
	return d
}

// ValidateDestination returns ErrInvalidDestination for anything but a canonical number
func ValidateDestination(destination string) error {
	if !destinationPattern.MatchString(destination) {
		return errors.Wrapf(errors.ErrInvalidDestination, "%q", destination)
	}
	return nil
}

// SendOne sends body to destination through the tenant's ready client
func (d *Dispatcher) SendOne(ctx context.Context, tenantID, destination, body string) (waclient.SendResult, error) {
	client, err := d.readyClient(tenantID)
	if err != nil {
		return waclient.SendResult{}, err
	}
	if err := ValidateDestination(destination); err != nil {
		return waclient.SendResult{}, err
	}
	return d.send(ctx, client, destination, body)
}

// SendBulk sends every item independently. Readiness is checked once; after that each
// destination gets exactly one outcome and a failed item never stops the others.
func (d *Dispatcher) SendBulk(ctx context.Context, tenantID string, items map[string]string) (map[string]Outcome, error) {
	client, err := d.readyClient(tenantID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]Outcome, len(items))
	record := func(destination string, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		results[destination] = o
	}

	p := pool.New().WithMaxGoroutines(d.concurrency)
	for destination, body := range items {
		if err := ValidateDestination(destination); err != nil {
			record(destination, failure(err))
			continue
		}
		p.Go(func() {
			res, err := d.send(ctx, client, destination, body)
			if err != nil {
				record(destination, failure(err))
				return
			}
			record(destination, Outcome{OK: true, MessageID: res.MessageID})
		})
	}
	p.Wait()

	failed := 0
	for _, o := range results {
		if !o.OK {
			failed++
		}
	}
	log.Info().Str("tenant", tenantID).Int("items", len(items)).Int("failed", failed).Msg("bulk send finished")
	return results, nil
}

func (d *Dispatcher) readyClient(tenantID string) (waclient.Client, error) {
	if err := tenants.ValidateID(tenantID); err != nil {
		return nil, err
	}
	return d.sessions.ReadyClient(tenantID)
}

func (d *Dispatcher) send(ctx context.Context, client waclient.Client, destination, body string) (waclient.SendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	res, err := client.SendMessage(sendCtx, destination, body)
	if err != nil {
		return waclient.SendResult{}, &errors.SendError{Destination: destination, Cause: err}
	}
	return res, nil
}

func failure(err error) Outcome {
	return Outcome{Error: err.Error(), Category: Category(err)}
}

// Category classifies a send error for reporting
func Category(err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidDestination):
		return CategoryInvalidDestination
	case errors.Is(err, errors.ErrSessionNotReady):
		return CategoryNotReady
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategorySendFailed
	}
}
