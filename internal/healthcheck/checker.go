package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// Config controls probe scheduling.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Result describes the outcome of one probe.
type Result struct {
	BackendID string
	Healthy   bool
	Changed   bool
	Err       error
	Duration  time.Duration
	CheckedAt time.Time
}

// Observer receives every probe result. It is called from probe goroutines
// and must not block.
type Observer func(Result)

// Option configures a Checker.
type Option func(*Checker)

// WithProber replaces the default WebSocket prober.
func WithProber(p Prober) Option {
	return func(c *Checker) { c.prober = p }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Checker) { c.clock = clock }
}

// WithObserver registers a callback for probe results.
func WithObserver(o Observer) Option {
	return func(c *Checker) { c.observer = o }
}

// Checker keeps the health fields of every registered backend current.
type Checker struct {
	registry *backend.Registry
	cfg      Config
	prober   Prober
	clock    clockwork.Clock
	observer Observer
	logger   *slog.Logger

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Checker but does not start it.
func New(registry *backend.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		registry: registry,
		cfg:      cfg,
		prober:   NewWebSocketProber(),
		clock:    clockwork.NewRealClock(),
		logger:   logger.With(slog.String("component", "healthcheck")),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs an immediate round of probes and then one round per interval
// until ctx is cancelled or Stop is called. Starting a running checker is a
// no-op.
func (c *Checker) Start(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cancel != nil {
		c.logger.Warn("Health checker already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
}

// Stop cancels the loop and waits for in-flight probes to finish.
func (c *Checker) Stop() {
	c.mutex.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mutex.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (c *Checker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := c.clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("Health checker started",
		slog.Duration("interval", c.cfg.Interval),
		slog.Duration("timeout", c.cfg.Timeout),
		slog.Int("backends", c.registry.Len()))

	c.CheckNow(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return
		case <-ticker.Chan():
			c.CheckNow(ctx)
		}
	}
}

// CheckNow probes every backend concurrently and returns once all probes
// have completed or timed out.
func (c *Checker) CheckNow(ctx context.Context) {
	var g errgroup.Group

	for _, b := range c.registry.All() {
		g.Go(func() error {
			c.check(ctx, b)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Checker) check(ctx context.Context, b *backend.Backend) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := c.clock.Now()
	err := c.prober.Probe(probeCtx, b)

	// A probe cut short by shutdown says nothing about the backend.
	if ctx.Err() != nil {
		return
	}

	healthy := err == nil
	checkedAt := c.clock.Now()
	changed := b.RecordHealthCheck(healthy, checkedAt)

	attrs := []any{
		slog.String("backend", b.ID()),
		slog.String("address", b.Address()),
		slog.Bool("healthy", healthy),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}

	switch {
	case changed && healthy:
		c.logger.Info("Backend is back up", attrs...)
	case changed:
		c.logger.Warn("Backend is down", attrs...)
	default:
		c.logger.Debug("Health check completed", attrs...)
	}

	if c.observer != nil {
		c.observer(Result{
			BackendID: b.ID(),
			Healthy:   healthy,
			Changed:   changed,
			Err:       err,
			Duration:  checkedAt.Sub(start),
			CheckedAt: checkedAt,
		})
	}
}
