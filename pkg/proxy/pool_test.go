package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcProvider adapts a function to the Provider interface and counts calls.
type funcProvider struct {
	name  string
	calls atomic.Int64
	fn    func(ctx context.Context) (string, error)
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) GetProxy(ctx context.Context) (string, error) {
	p.calls.Add(1)
	return p.fn(ctx)
}

func fixed(name, addr string) *funcProvider {
	return &funcProvider{name: name, fn: func(context.Context) (string, error) {
		return addr, nil
	}}
}

// fastPool builds a pool with short cooldowns and, optionally, a running
// preload worker.
func fastPool(t *testing.T, preload bool, providers ...Provider) *Pool {
	t.Helper()
	p := newPool(providers, nil)
	p.baseCooldown = time.Millisecond
	p.fullCooldown = 5 * time.Millisecond
	p.errBackoff = time.Millisecond
	p.closeGrace = 100 * time.Millisecond
	if preload && len(providers) > 0 {
		p.startPreload()
	}
	t.Cleanup(p.Close)
	return p
}

func TestGetNextProxyPrefersBuffered(t *testing.T) {
	p := fastPool(t, false, fixed("fallback", "http://198.51.100.1:80"))
	p.buffer <- "http://192.0.2.1:8080"

	assert.Equal(t, "http://192.0.2.1:8080", p.GetNextProxy(context.Background()))
	// Buffer drained; next call falls through to the provider.
	assert.Equal(t, "http://198.51.100.1:80", p.GetNextProxy(context.Background()))
}

func TestGetNextProxyFallbackOrder(t *testing.T) {
	failing := &funcProvider{name: "down", fn: func(context.Context) (string, error) {
		return "", errors.New("endpoint unreachable")
	}}
	empty := &funcProvider{name: "empty", fn: func(context.Context) (string, error) {
		return "", nil
	}}
	p := fastPool(t, false, failing, empty, fixed("up", "http://198.51.100.2:3128"))

	assert.Equal(t, "http://198.51.100.2:3128", p.GetNextProxy(context.Background()))
	assert.Equal(t, int64(1), failing.calls.Load())
	assert.Equal(t, int64(1), empty.calls.Load())
}

func TestGetNextProxyNoProviders(t *testing.T) {
	p := fastPool(t, false)
	assert.Equal(t, "", p.GetNextProxy(context.Background()))
}

func TestPreloadFillsSingleSlot(t *testing.T) {
	p := fastPool(t, true, fixed("up", "http://192.0.2.9:8080"))

	require.Eventually(t, func() bool {
		return len(p.buffer) == 1
	}, time.Second, time.Millisecond)

	// The slot stays at exactly one buffered address while full.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, len(p.buffer))

	assert.Equal(t, "http://192.0.2.9:8080", p.GetNextProxy(context.Background()))
}

func TestPreloadSkipsInvalidAndCounts(t *testing.T) {
	bad := fixed("bad", "ftp://192.0.2.1:80")
	good := fixed("good", "http://192.0.2.2:80")
	p := fastPool(t, true, bad, good)

	require.Eventually(t, func() bool {
		return len(p.buffer) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, "http://192.0.2.2:80", p.GetNextProxy(context.Background()))
	assert.GreaterOrEqual(t, p.InvalidCount(), int64(1))
}

func TestPreloadShortCircuitsOnFill(t *testing.T) {
	first := fixed("first", "http://192.0.2.3:80")
	second := fixed("second", "http://192.0.2.4:80")
	p := fastPool(t, true, first, second)

	require.Eventually(t, func() bool {
		return len(p.buffer) == 1
	}, time.Second, time.Millisecond)

	// The first provider fills the slot, so the second is never consulted.
	assert.Equal(t, int64(0), second.calls.Load())
}

func TestPreloadSurvivesPanickingProvider(t *testing.T) {
	panicking := &funcProvider{name: "boom", fn: func(context.Context) (string, error) {
		panic("provider exploded")
	}}
	fastPool(t, true, panicking)

	require.Eventually(t, func() bool {
		return panicking.calls.Load() >= 3
	}, time.Second, time.Millisecond, "preload worker should keep running after panics")
}

type fetchEntry struct {
	platform string
	address  string
	valid    bool
}

// memRecorder collects fetch audit entries in memory.
type memRecorder struct {
	mu      sync.Mutex
	entries []fetchEntry
	err     error
}

func (r *memRecorder) RecordProxyFetch(_ context.Context, platform, address string, valid bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, fetchEntry{platform: platform, address: address, valid: valid})
	return r.err
}

func (r *memRecorder) snapshot() []fetchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fetchEntry(nil), r.entries...)
}

func TestPreloadRecordsFetchedCandidates(t *testing.T) {
	bad := fixed("bad", "ftp://192.0.2.1:80")
	good := fixed("good", "http://192.0.2.2:80")
	p := fastPool(t, false, bad, good)

	rec := &memRecorder{}
	p.SetFetchRecorder(rec)
	p.startPreload()

	require.Eventually(t, func() bool {
		return len(p.buffer) == 1
	}, time.Second, time.Millisecond)

	entries := rec.snapshot()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries, fetchEntry{platform: "bad", address: "ftp://192.0.2.1:80", valid: false})
	assert.Contains(t, entries, fetchEntry{platform: "good", address: "http://192.0.2.2:80", valid: true})
}

func TestGetNextProxyFallbackRecordsFetch(t *testing.T) {
	p := fastPool(t, false, fixed("up", "http://198.51.100.3:8080"))
	rec := &memRecorder{}
	p.SetFetchRecorder(rec)

	assert.Equal(t, "http://198.51.100.3:8080", p.GetNextProxy(context.Background()))
	assert.Equal(t, []fetchEntry{
		{platform: "up", address: "http://198.51.100.3:8080", valid: true},
	}, rec.snapshot())
}

func TestPoolToleratesFailingRecorder(t *testing.T) {
	p := fastPool(t, false, fixed("up", "http://198.51.100.4:8080"))
	p.SetFetchRecorder(&memRecorder{err: errors.New("database is down")})

	// Recording failures are logged, never propagated to the caller.
	assert.Equal(t, "http://198.51.100.4:8080", p.GetNextProxy(context.Background()))
}

func TestCloseIdempotent(t *testing.T) {
	p := fastPool(t, true, fixed("up", "http://192.0.2.5:80"))

	start := time.Now()
	p.Close()
	p.Close()
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-p.done:
	default:
		t.Fatal("preload worker still running after Close")
	}
}

func TestCloseWithoutPreloadTask(t *testing.T) {
	p := newPool(nil, nil)
	assert.NotPanics(t, func() {
		p.Close()
		p.Close()
	})
}

func TestCloseForceCancelsStuckWorker(t *testing.T) {
	stuck := &funcProvider{name: "stuck", fn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	p := fastPool(t, false, stuck)
	p.closeGrace = 20 * time.Millisecond
	p.startPreload()

	require.Eventually(t, func() bool {
		return stuck.calls.Load() > 0
	}, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not terminate the stuck worker")
	}
}

func TestConsumerAndPreloadInterleaving(t *testing.T) {
	p := fastPool(t, true, fixed("up", "http://192.0.2.6:80"))

	// Hammer the pool; every take must yield the provider's address and the
	// slot must never hold more than one value.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		addr := p.GetNextProxy(context.Background())
		require.Equal(t, "http://192.0.2.6:80", addr)
		require.LessOrEqual(t, len(p.buffer), 1)
	}
}
