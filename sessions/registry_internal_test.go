package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/jrsteele09/wa-session-gateway/waclient/clientfakes"
	"github.com/stretchr/testify/require"
)

func buildFake(built *int32) BuildFunc {
	return func(ctx context.Context, tenantID string) (*Session, error) {
		atomic.AddInt32(built, 1)
		time.Sleep(5 * time.Millisecond)
		return newSession(tenantID, clientfakes.NewFakeClient(tenantID, ""), time.Now()), nil
	}
}

func TestRegistryGetOrCreateBuildsOnce(t *testing.T) {
	r := NewRegistry()
	var built int32

	var wg sync.WaitGroup
	results := make(chan *Session, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, _, err := r.GetOrCreate(context.Background(), "t1", buildFake(&built))
			if err == nil {
				results <- sess
			}
		}()
	}
	wg.Wait()
	close(results)

	require.EqualValues(t, 1, atomic.LoadInt32(&built))
	var first *Session
	for sess := range results {
		if first == nil {
			first = sess
		}
		require.Same(t, first, sess)
	}
	require.Equal(t, 1, r.Len())
}

func TestRegistryCreateReplacesAndReleases(t *testing.T) {
	r := NewRegistry()
	var built int32
	ctx := context.Background()

	old, err := r.Create(ctx, "t1", buildFake(&built))
	require.NoError(t, err)
	next, err := r.Create(ctx, "t1", buildFake(&built))
	require.NoError(t, err)
	require.NotSame(t, old, next)

	require.False(t, old.Alive())
	require.True(t, errors.Is(old.Err(), errors.ErrDisconnected))
	require.True(t, old.client.(*clientfakes.FakeClient).Destroyed())

	cur, ok := r.Get("t1")
	require.True(t, ok)
	require.Same(t, next, cur)
}

func TestRegistryCreateRefusesReady(t *testing.T) {
	r := NewRegistry()
	var built int32
	ctx := context.Background()

	sess, err := r.Create(ctx, "t1", buildFake(&built))
	require.NoError(t, err)
	_, ok := sess.apply(waclient.Event{Kind: waclient.EventReady}, time.Now())
	require.True(t, ok)

	_, err = r.Create(ctx, "t1", buildFake(&built))
	require.True(t, errors.Is(err, errors.ErrAlreadyActive))
	require.EqualValues(t, 1, atomic.LoadInt32(&built))
}

func TestRegistryWithCurrentIgnoresStaleRecord(t *testing.T) {
	r := NewRegistry()
	var built int32
	ctx := context.Background()

	stale, err := r.Create(ctx, "t1", buildFake(&built))
	require.NoError(t, err)
	current, err := r.Create(ctx, "t1", buildFake(&built))
	require.NoError(t, err)

	ran := r.WithCurrent("t1", stale, func() bool { return true })
	require.False(t, ran)
	require.False(t, r.WithCurrent("unknown", current, func() bool { return true }))

	cur, ok := r.Get("t1")
	require.True(t, ok)
	require.Same(t, current, cur)

	require.True(t, r.WithCurrent("t1", current, func() bool { return false }))
	_, ok = r.Get("t1")
	require.True(t, ok)

	require.True(t, r.WithCurrent("t1", current, func() bool { return true }))
	_, ok = r.Get("t1")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestRegistryRemoveRunsCleanupWithoutRecord(t *testing.T) {
	r := NewRegistry()
	var cleaned bool
	old, err := r.Remove("t1", func(old *Session) error {
		cleaned = true
		require.Nil(t, old)
		return nil
	})
	require.NoError(t, err)
	require.Nil(t, old)
	require.True(t, cleaned)
}

func TestRegistryTenantsDoNotBlockEachOther(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	slow := func(ctx context.Context, tenantID string) (*Session, error) {
		<-release
		return newSession(tenantID, clientfakes.NewFakeClient(tenantID, ""), time.Now()), nil
	}
	go func() {
		_, _ = r.Create(context.Background(), "slow", slow)
	}()
	defer close(release)

	var built int32
	done := make(chan struct{})
	go func() {
		_, _ = r.Create(context.Background(), "fast", buildFake(&built))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("creation for one tenant blocked on another")
	}
}

func TestAwaitQR(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns a code generated after notBefore", func(t *testing.T) {
		sess := newSession("t1", clientfakes.NewFakeClient("t1", ""), base)
		go func() {
			time.Sleep(5 * time.Millisecond)
			sess.apply(waclient.Event{Kind: waclient.EventPairingCode, Payload: "c1"}, base.Add(time.Second))
		}()
		code, err := sess.AwaitQR(context.Background(), base)
		require.NoError(t, err)
		require.Equal(t, "c1", code)
	})

	t.Run("waits past an old code", func(t *testing.T) {
		sess := newSession("t1", clientfakes.NewFakeClient("t1", ""), base)
		sess.apply(waclient.Event{Kind: waclient.EventPairingCode, Payload: "old"}, base)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := sess.AwaitQR(ctx, base.Add(time.Second))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("ready ends the wait", func(t *testing.T) {
		sess := newSession("t1", clientfakes.NewFakeClient("t1", ""), base)
		sess.apply(waclient.Event{Kind: waclient.EventReady}, base)
		_, err := sess.AwaitQR(context.Background(), base)
		require.ErrorIs(t, err, errBecameReady)
	})

	t.Run("release ends the wait", func(t *testing.T) {
		sess := newSession("t1", clientfakes.NewFakeClient("t1", ""), base)
		go sess.release(&errors.DisconnectedError{Reason: "logged out"})
		_, err := sess.AwaitQR(context.Background(), base)
		require.True(t, errors.Is(err, errors.ErrDisconnected))
	})
}
