package repofakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/wa-session-gateway/storage"
)

var _ storage.Store = (*FakeStore)(nil)

// FakeStore wraps an in-memory store, records every call and can be told to fail
// individual operations.
type FakeStore struct {
	*storage.InMemoryStore

	lock  sync.Mutex
	calls   []Call
	fail    map[string]error
	failKey map[Call]error
}

// Call is one recorded operation
type Call struct {
	Op  string
	Key string
}

// Operation names understood by FailOn
const (
	OpPut       = "put"
	OpGet       = "get"
	OpListKeys  = "list"
	OpDelete    = "delete"
	OpDeleteAll = "deleteAll"
)

func NewFakeStore() *FakeStore {
	return &FakeStore{
		InMemoryStore: storage.NewInMemoryStore(),
		fail:          make(map[string]error),
		failKey:       make(map[Call]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears the failure.
func (f *FakeStore) FailOn(op string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// FailOnKey makes op fail with err for key only. A nil err clears the failure.
func (f *FakeStore) FailOnKey(op, key string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.failKey, Call{Op: op, Key: key})
		return
	}
	f.failKey[Call{Op: op, Key: key}] = err
}

// Calls returns a copy of the recorded operations
func (f *FakeStore) Calls() []Call {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount counts recorded calls of op
func (f *FakeStore) CallCount(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeStore) record(op, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, Call{Op: op, Key: key})
	if err, ok := f.failKey[Call{Op: op, Key: key}]; ok {
		return storage.Unavailable(err, op, key)
	}
	if err, ok := f.fail[op]; ok {
		return storage.Unavailable(err, op, key)
	}
	return nil
}

func (f *FakeStore) Put(ctx context.Context, key string, data []byte) error {
	if err := f.record(OpPut, key); err != nil {
		return err
	}
	return f.InMemoryStore.Put(ctx, key, data)
}

func (f *FakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.record(OpGet, key); err != nil {
		return nil, err
	}
	return f.InMemoryStore.Get(ctx, key)
}

func (f *FakeStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := f.record(OpListKeys, prefix); err != nil {
		return nil, err
	}
	return f.InMemoryStore.ListKeys(ctx, prefix)
}

func (f *FakeStore) Delete(ctx context.Context, key string) error {
	if err := f.record(OpDelete, key); err != nil {
		return err
	}
	return f.InMemoryStore.Delete(ctx, key)
}

func (f *FakeStore) DeleteAll(ctx context.Context, prefix string) error {
	if err := f.record(OpDeleteAll, prefix); err != nil {
		return err
	}
	return f.InMemoryStore.DeleteAll(ctx, prefix)
}
