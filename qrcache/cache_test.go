package qrcache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/qrcache"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingGenerator(calls *int32) qrcache.Generator {
	return func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(calls, 1)
		return fmt.Sprintf("qr-%d", n), nil
	}
}

func setupCache(options ...qrcache.Option) (*qrcache.Cache, *testClock) {
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	options = append([]qrcache.Option{qrcache.WithNowFunc(clock.Now)}, options...)
	return qrcache.New(options...), clock
}

func TestReuseWithinTTL(t *testing.T) {
	cache, clock := setupCache()
	ctx := context.Background()
	var calls int32

	first, fresh, err := cache.GetOrGenerate(ctx, "t1", countingGenerator(&calls))
	require.NoError(t, err)
	require.True(t, fresh)

	clock.Advance(19 * time.Second)
	second, fresh, err := cache.GetOrGenerate(ctx, "t1", countingGenerator(&calls))
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegenerateAfterTTL(t *testing.T) {
	cache, clock := setupCache()
	ctx := context.Background()
	var calls int32

	first, _, err := cache.GetOrGenerate(ctx, "t1", countingGenerator(&calls))
	require.NoError(t, err)

	clock.Advance(qrcache.DefaultTTL)
	second, fresh, err := cache.GetOrGenerate(ctx, "t1", countingGenerator(&calls))
	require.NoError(t, err)
	require.True(t, fresh)
	require.NotEqual(t, first, second)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTenantsAreIndependent(t *testing.T) {
	cache, _ := setupCache()
	ctx := context.Background()
	var calls int32

	a, _, err := cache.GetOrGenerate(ctx, "t1", countingGenerator(&calls))
	require.NoError(t, err)
	b, _, err := cache.GetOrGenerate(ctx, "t2", countingGenerator(&calls))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGeneratorTimeout(t *testing.T) {
	cache, _ := setupCache(qrcache.WithTimeout(20 * time.Millisecond))

	t.Run("generator honouring ctx", func(t *testing.T) {
		_, _, err := cache.GetOrGenerate(context.Background(), "t1", func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		require.True(t, errors.Is(err, errors.ErrQrTimeout))
	})

	t.Run("generator ignoring ctx", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, _, err := cache.GetOrGenerate(context.Background(), "t2", func(ctx context.Context) (string, error) {
			<-release
			return "late", nil
		})
		require.True(t, errors.Is(err, errors.ErrQrTimeout))
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("timeout is not cached", func(t *testing.T) {
		p, fresh, err := cache.GetOrGenerate(context.Background(), "t1", func(ctx context.Context) (string, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		require.True(t, fresh)
		require.Equal(t, "recovered", p)
	})
}

func TestConcurrentCallersShareOneGeneration(t *testing.T) {
	cache, _ := setupCache()
	var calls int32
	release := make(chan struct{})

	gen := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const callers = 8
	results := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := cache.GetOrGenerate(context.Background(), "t1", gen)
			if err != nil {
				p = err.Error()
			}
			results <- p
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for p := range results {
		require.Equal(t, "shared", p)
	}
}

func TestCallerCancelDoesNotAbortSharedRun(t *testing.T) {
	cache, _ := setupCache()
	release := make(chan struct{})
	gen := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "code", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := cache.GetOrGenerate(ctx, "t1", gen)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		p, ok := cache.Peek("t1")
		return ok && p == "code"
	}, time.Second, time.Millisecond)
}

func TestStorePeekClear(t *testing.T) {
	cache, clock := setupCache()

	_, ok := cache.Peek("t1")
	require.False(t, ok)

	cache.Store("t1", "pushed")
	p, ok := cache.Peek("t1")
	require.True(t, ok)
	require.Equal(t, "pushed", p)

	var calls int32
	got, fresh, err := cache.GetOrGenerate(context.Background(), "t1", countingGenerator(&calls))
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, "pushed", got)
	require.Zero(t, atomic.LoadInt32(&calls))

	clock.Advance(qrcache.DefaultTTL + time.Second)
	_, ok = cache.Peek("t1")
	require.False(t, ok)
	_, ok = cache.GeneratedAt("t1")
	require.True(t, ok)

	cache.Clear("t1")
	_, ok = cache.GeneratedAt("t1")
	require.False(t, ok)
}
