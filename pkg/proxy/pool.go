// Package proxy manages rotating egress addresses: providers that produce
// candidate proxies, format validation, and a pool that keeps one validated
// address preloaded for non-blocking pickup.
package proxy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"egress-client/pkg/config"
)

const (
	baseCooldown       = 500 * time.Millisecond
	fullBufferCooldown = 5 * time.Second
	errorBackoff       = time.Second
	closeGracePeriod   = 5 * time.Second
)

// FetchRecorder receives every candidate address a provider produced, with
// the validation verdict, for auditing provider quality.
type FetchRecorder interface {
	RecordProxyFetch(ctx context.Context, platform, address string, valid bool) error
}

// Pool owns an ordered provider list and a single-slot buffer of one
// validated address. A background worker keeps the buffer filled so the
// common-case GetNextProxy does not touch the network.
type Pool struct {
	providers []Provider
	buffer    chan string
	logger    *slog.Logger
	invalid   atomic.Int64
	recorder  FetchRecorder // guarded by mu

	// mu makes the provider scan of the preload worker and the fallback
	// scan of GetNextProxy mutually exclusive. Never held across a sleep.
	mu sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	started   bool
	closeOnce sync.Once

	baseCooldown time.Duration
	fullCooldown time.Duration
	errBackoff   time.Duration
	closeGrace   time.Duration
}

// NewPool builds a pool from configuration. With proxy usage disabled the
// pool has no providers and GetNextProxy always returns "".
func NewPool(conf config.ProxyConfig, logger *slog.Logger) *Pool {
	return NewPoolWithProviders(providersFromConfig(conf, logger), logger)
}

// NewPoolWithProviders builds a pool over an explicit, priority-ordered
// provider list. The preload worker starts only when providers exist.
func NewPoolWithProviders(providers []Provider, logger *slog.Logger) *Pool {
	p := newPool(providers, logger)
	if len(p.providers) > 0 {
		p.startPreload()
	}
	return p
}

func newPool(providers []Provider, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		providers:    providers,
		buffer:       make(chan string, 1),
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		baseCooldown: baseCooldown,
		fullCooldown: fullBufferCooldown,
		errBackoff:   errorBackoff,
		closeGrace:   closeGracePeriod,
	}
}

// SetFetchRecorder installs an audit sink for fetched candidates. Recording
// failures are logged, never propagated.
func (p *Pool) SetFetchRecorder(r FetchRecorder) {
	p.mu.Lock()
	p.recorder = r
	p.mu.Unlock()
}

// recordFetch audits one candidate. Callers hold p.mu.
func (p *Pool) recordFetch(ctx context.Context, platform, addr string, valid bool) {
	if p.recorder == nil || addr == "" {
		return
	}
	if err := p.recorder.RecordProxyFetch(ctx, platform, addr, valid); err != nil {
		p.logger.Warn("failed to record proxy fetch",
			"platform", platform,
			"error", err)
	}
}

func (p *Pool) startPreload() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true
	go p.preloadLoop(ctx)
}

// GetNextProxy returns the preloaded address when one is buffered, otherwise
// falls back to a synchronous scan over the providers in priority order.
// Returns "" when no provider yields an address. The fallback path does not
// re-validate: only buffered addresses pass through ValidateAddress.
func (p *Pool) GetNextProxy(ctx context.Context) string {
	select {
	case addr := <-p.buffer:
		return addr
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prov := range p.providers {
		addr, err := prov.GetProxy(ctx)
		if err != nil {
			p.logger.Warn("provider yielded no proxy",
				"provider", prov.Name(),
				"error", err)
			continue
		}
		if addr != "" {
			p.recordFetch(ctx, prov.Name(), addr, ValidateAddress(addr))
			return addr
		}
	}
	return ""
}

// InvalidCount reports how many absent or malformed candidates the preload
// worker has discarded.
func (p *Pool) InvalidCount() int64 {
	return p.invalid.Load()
}

// Close stops the preload worker: it signals stop, waits up to the grace
// period for a natural exit, then force-cancels in-flight provider calls and
// waits for the worker to confirm termination. Idempotent, and a no-op when
// no worker was ever started.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
		if !p.started {
			return
		}
		defer p.cancel()
		select {
		case <-p.done:
		case <-time.After(p.closeGrace):
			p.logger.Warn("preload worker did not stop in time, force cancelling")
			p.cancel()
			<-p.done
		}
	})
}

func (p *Pool) preloadLoop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		wait := p.preloadOnce(ctx)

		if wait > 0 {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// preloadOnce runs one fill pass and returns the sleep before the next one:
// the full-buffer cooldown when there is nothing to do, zero after a
// successful fill, the base cooldown otherwise. A panicking provider is
// contained here so the worker never dies on a transient error.
func (p *Pool) preloadOnce(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("preload pass failed", "panic", r)
			wait = p.errBackoff
		}
	}()

	if len(p.buffer) == cap(p.buffer) {
		return p.fullCooldown
	}

	wait = p.baseCooldown
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prov := range p.providers {
		select {
		case <-p.stop:
			return 0
		case <-ctx.Done():
			return 0
		default:
		}

		addr, err := prov.GetProxy(ctx)
		valid := err == nil && addr != "" && ValidateAddress(addr)
		p.recordFetch(ctx, prov.Name(), addr, valid)
		if !valid {
			if err != nil {
				p.logger.Warn("provider yielded no proxy",
					"provider", prov.Name(),
					"error", err)
			}
			p.invalid.Add(1)
			continue
		}

		select {
		case p.buffer <- addr:
			// Filled the slot; skip the remaining providers and go
			// straight into the next pass.
			return 0
		default:
			p.logger.Warn("proxy buffer full, pausing fill")
			return wait
		}
	}
	return wait
}
