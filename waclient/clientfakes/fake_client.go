package clientfakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/wa-session-gateway/waclient"
)

var (
	_ waclient.Client        = (*FakeClient)(nil)
	_ waclient.Flusher       = (*FakeClient)(nil)
	_ waclient.LogoutCapable = (*FakeClient)(nil)
)

// FakeClient is a scriptable client. Tests drive its lifecycle with the Emit helpers.
type FakeClient struct {
	TenantID      string
	CredentialDir string

	events chan waclient.Event

	mu          sync.Mutex
	initialized int
	destroyed   bool
	loggedOut   bool
	flushes     int
	sent        []SentMessage
	sendErrs    map[string]error
	sendSeq     int
	onFlush     func() error
}

type SentMessage struct {
	Destination string
	Body        string
}

func NewFakeClient(tenantID, credentialDir string) *FakeClient {
	return &FakeClient{
		TenantID:      tenantID,
		CredentialDir: credentialDir,
		events:        make(chan waclient.Event, 16),
		sendErrs:      make(map[string]error),
	}
}

func (c *FakeClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return fmt.Errorf("client destroyed")
	}
	c.initialized++
	return nil
}

func (c *FakeClient) Events() <-chan waclient.Event {
	return c.events
}

func (c *FakeClient) SendMessage(ctx context.Context, destination, body string) (waclient.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return waclient.SendResult{}, fmt.Errorf("client destroyed")
	}
	if err, ok := c.sendErrs[destination]; ok {
		return waclient.SendResult{}, err
	}
	c.sendSeq++
	c.sent = append(c.sent, SentMessage{Destination: destination, Body: body})
	return waclient.SendResult{MessageID: fmt.Sprintf("msg-%d", c.sendSeq), Timestamp: time.Now()}, nil
}

func (c *FakeClient) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	close(c.events)
	return nil
}

func (c *FakeClient) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.flushes++
	hook := c.onFlush
	c.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

func (c *FakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

// FailSendTo makes sends to destination fail with err
func (c *FakeClient) FailSendTo(destination string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErrs[destination] = err
}

// OnFlush runs hook on every Flush, for example to write credential files
func (c *FakeClient) OnFlush(hook func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFlush = hook
}

func (c *FakeClient) EmitPairingCode(payload string) {
	c.emit(waclient.Event{Kind: waclient.EventPairingCode, Payload: payload})
}

func (c *FakeClient) EmitReady() {
	c.emit(waclient.Event{Kind: waclient.EventReady})
}

func (c *FakeClient) EmitAuthFailure(reason string) {
	c.emit(waclient.Event{Kind: waclient.EventAuthFailure, Reason: reason})
}

func (c *FakeClient) EmitDisconnected(reason string) {
	c.emit(waclient.Event{Kind: waclient.EventDisconnected, Reason: reason})
}

// emit drops the event when the client was already destroyed
func (c *FakeClient) emit(evt waclient.Event) {
	evt.At = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.events <- evt
}

func (c *FakeClient) Initialized() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *FakeClient) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *FakeClient) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *FakeClient) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

func (c *FakeClient) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}
