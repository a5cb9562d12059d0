package clientfakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/wa-session-gateway/waclient"
)

// Factory hands out FakeClients and remembers every one it built
type Factory struct {
	mu      sync.Mutex
	clients []*FakeClient
	err     error
	hook    func(tenantID, credentialDir string)
}

func NewFactory() *Factory {
	return &Factory{}
}

// Build satisfies waclient.Factory
func (f *Factory) Build(ctx context.Context, tenantID, credentialDir string) (waclient.Client, error) {
	f.mu.Lock()
	hook := f.hook
	err := f.err
	f.mu.Unlock()

	if hook != nil {
		hook(tenantID, credentialDir)
	}
	if err != nil {
		return nil, err
	}

	c := NewFakeClient(tenantID, credentialDir)
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

// FailWith makes every subsequent Build return err
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// OnBuild runs hook before each client is constructed
func (f *Factory) OnBuild(hook func(tenantID, credentialDir string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Clients returns every client built for tenantID, oldest first
func (f *Factory) Clients(tenantID string) []*FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeClient, 0)
	for _, c := range f.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}

// Latest returns the newest client built for tenantID, or nil
func (f *Factory) Latest(tenantID string) *FakeClient {
	clients := f.Clients(tenantID)
	if len(clients) == 0 {
		return nil
	}
	return clients[len(clients)-1]
}
