package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"tokenticker/internal/market"
)

// ErrAlreadyStarted is returned by Start on a poller that was started before.
var ErrAlreadyStarted = errors.New("feed: poller already started")

// ErrStopped is returned by Start on a poller that was stopped.
var ErrStopped = errors.New("feed: poller stopped")

// Sink receives every snapshot the poller applies.
type Sink interface {
	Publish(ctx context.Context, s Snapshot) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(context.Context, Snapshot) error

func (f SinkFunc) Publish(ctx context.Context, s Snapshot) error {
	return f(ctx, s)
}

// Config holds poller configuration.
type Config struct {
	TokenAddress string
	Interval     time.Duration // Poll interval (default: 15s)
	FetchTimeout time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns the polling cadence used by the landing page.
func DefaultConfig(tokenAddress string) Config {
	return Config{
		TokenAddress: tokenAddress,
		Interval:     15 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// Option configures a Poller.
type Option func(*Poller)

func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithInitial replaces the loading snapshot the poller starts with, e.g. the
// last snapshot mirrored before a restart.
func WithInitial(s Snapshot) Option {
	return func(p *Poller) { p.snap = s }
}

// WithSink adds a listener for applied snapshots. Sinks are called in order.
func WithSink(s Sink) Option {
	return func(p *Poller) { p.sinks = append(p.sinks, s) }
}

// Poller keeps a Snapshot of one token current by fetching its pairs on a
// fixed interval. Fetch errors never escape the poller; they are recorded in
// the snapshot and logged.
//
// At most one fetch is outstanding at a time: the loop waits for each fetch
// before taking the next tick, and Refresh joins a fetch already in flight.
type Poller struct {
	cfg    Config
	source market.Source
	clock  clockwork.Clock
	logger *slog.Logger
	sinks  []Sink

	group singleflight.Group

	// applyMu serializes applying and publishing with Stop.
	applyMu sync.Mutex

	mu      sync.RWMutex
	snap    Snapshot
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// New creates a Poller holding the initial loading snapshot.
func New(cfg Config, source market.Source, opts ...Option) *Poller {
	def := DefaultConfig(cfg.TokenAddress)
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	p := &Poller{
		cfg:    cfg,
		source: source,
		snap:   Initial(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Start fetches immediately and then once per interval until Stop is called
// or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	ticker := p.clock.NewTicker(p.cfg.Interval)

	p.wg.Add(1)
	go p.run(ticker)

	p.logger.Info("token poller started",
		"token", p.cfg.TokenAddress,
		"source", p.source.Name(),
		"interval", p.cfg.Interval,
	)
	return nil
}

// Stop cancels the ticker and any in-flight fetch. Once Stop returns, the
// snapshot is frozen and no sink is called again, even if a fetch that
// ignores cancellation completes later. Stop returns ctx.Err() if the loop
// has not exited by then; the snapshot is frozen regardless.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	p.applyMu.Lock()
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.applyMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("token poller stopped", "token", p.cfg.TokenAddress)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh fetches now, or waits for the fetch already in flight, and returns
// the resulting snapshot. An error is returned only when ctx ends first; the
// fetch itself keeps running for other waiters.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	ch := p.group.DoChan(p.cfg.TokenAddress, func() (any, error) {
		p.poll()
		return nil, nil
	})
	select {
	case <-ch:
		return p.Snapshot(), nil
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
}

// Snapshot returns the current display state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Poller) run(ticker clockwork.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	// Poll immediately on start.
	p.tick()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	_, _, _ = p.group.Do(p.cfg.TokenAddress, func() (any, error) {
		p.poll()
		return nil, nil
	})
}

// lifecycle returns the context bounding fetches and sink calls. Pollers that
// were never started fetch under a background context.
func (p *Poller) lifecycle() (context.Context, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, false
	}
	if p.ctx != nil {
		return p.ctx, true
	}
	return context.Background(), true
}

func (p *Poller) poll() {
	base, ok := p.lifecycle()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(base, p.cfg.FetchTimeout)
	defer cancel()

	start := p.clock.Now()
	pairs, err := p.source.Pairs(ctx, p.cfg.TokenAddress)
	now := p.clock.Now()

	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	if base.Err() != nil {
		p.logger.Debug("discarding token data after stop", "token", p.cfg.TokenAddress)
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.logger.Debug("discarding token data after stop", "token", p.cfg.TokenAddress)
		return
	}
	switch {
	case err != nil:
		p.snap = p.snap.Failed(now)
	case len(pairs) == 0:
		p.snap = Fallback(now)
	default:
		p.snap = FromPair(pairs[0], now)
	}
	next := p.snap
	p.mu.Unlock()

	switch {
	case err != nil:
		p.logger.Warn("failed to fetch token data",
			"token", p.cfg.TokenAddress,
			"source", p.source.Name(),
			"err", err,
		)
	case len(pairs) == 0:
		p.logger.Info("no trading pairs for token, using fallback values", "token", p.cfg.TokenAddress)
	default:
		p.logger.Debug("token data updated",
			"token", p.cfg.TokenAddress,
			"pairs", len(pairs),
			"price", next.Price,
			"duration", now.Sub(start),
		)
	}

	p.publish(base, next)
}

func (p *Poller) publish(base context.Context, s Snapshot) {
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(base, p.cfg.FetchTimeout)
		if err := sink.Publish(ctx, s); err != nil {
			p.logger.Warn("failed to publish token snapshot", "err", err)
		}
		cancel()
	}
}
