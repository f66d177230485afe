package loadbalancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ws-balancer/config"
	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/healthcheck"
	"github.com/angeloszaimis/ws-balancer/internal/httpserver"
	"github.com/angeloszaimis/ws-balancer/internal/metrics"
	"github.com/angeloszaimis/ws-balancer/internal/ratelimit"
	"github.com/angeloszaimis/ws-balancer/internal/session"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

var (
	ErrNoHealthyBackend = errors.New("no healthy backend available")
	ErrAlreadyStarted   = errors.New("load balancer already started")
	ErrStopped          = errors.New("load balancer stopped")
)

const rejectCloseTimeout = time.Second

type Option func(*LoadBalancer)

func WithLogger(logger *slog.Logger) Option {
	return func(lb *LoadBalancer) {
		lb.logger = logger
	}
}

// WithMetrics emits connection and session events to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(lb *LoadBalancer) {
		lb.collector = collector
	}
}

// WithDialer sets the dialer used for backend connections.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(lb *LoadBalancer) {
		lb.dialer = dialer
	}
}

// WithRateLimiter answers HTTP 429 to clients over their per-IP budget.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(lb *LoadBalancer) {
		lb.limiter = limiter
	}
}

// WithTrustedProxies overrides the proxies whose X-Forwarded-For header is
// honored. The default comes from the server configuration.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(lb *LoadBalancer) {
		lb.trusted = prefixes
	}
}

type LoadBalancer struct {
	cfg       *config.Config
	registry  *backend.Registry
	strategy  strategy.Strategy
	checker   *healthcheck.Checker
	collector *metrics.Collector
	limiter   *ratelimit.Limiter
	dialer    *websocket.Dialer
	upgrader  websocket.Upgrader
	trusted   []netip.Prefix
	logger    *slog.Logger

	// mutex makes selection and connection accounting one step.
	mutex sync.Mutex

	sessionsMu sync.Mutex
	sessions   map[string]*session.Session
	closing    bool
	wg         sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopDone    chan struct{}
	server      *httpserver.Server
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(cfg *config.Config, registry *backend.Registry, strat strategy.Strategy, checker *healthcheck.Checker, opts ...Option) *LoadBalancer {
	ctx, cancel := context.WithCancel(context.Background())

	lb := &LoadBalancer{
		cfg:      cfg,
		registry: registry,
		strategy: strat,
		checker:  checker,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		upgrader: websocket.Upgrader{
			// Origin policy belongs to the backends.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		trusted:  cfg.Server.TrustedProxyPrefixes(),
		logger:   slog.Default(),
		sessions: make(map[string]*session.Session),
		stopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(lb)
	}

	lb.logger = lb.logger.With(slog.String("component", "loadbalancer"))

	return lb
}

// Start binds the listening address, starts the health checker and begins
// accepting clients. A bind error is returned and nothing is started.
// Cancelling ctx stops the load balancer.
func (lb *LoadBalancer) Start(ctx context.Context) error {
	lb.lifecycleMu.Lock()
	defer lb.lifecycleMu.Unlock()

	if lb.stopped {
		return ErrStopped
	}
	if lb.started {
		return ErrAlreadyStarted
	}

	srv, err := httpserver.New(lb.cfg.Server.Address, lb)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", lb.cfg.Server.Address, err)
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen on %s: %w", lb.cfg.Server.Address, err)
	}

	lb.server = srv
	lb.started = true

	lb.checker.Start(lb.ctx)
	if lb.limiter != nil {
		lb.limiter.Start(lb.ctx)
	}

	go func() {
		if err := srv.Serve(); err != nil {
			lb.logger.Error("Load balancer server failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = lb.Stop(context.Background())
		case <-lb.ctx.Done():
		}
	}()

	lb.logger.Info("Load balancer started",
		slog.String("address", srv.Addr()),
		slog.String("algorithm", lb.strategy.Name()),
		slog.Int("backends", lb.registry.Len()))

	return nil
}

// Addr is the bound listening address once started.
func (lb *LoadBalancer) Addr() string {
	lb.lifecycleMu.Lock()
	defer lb.lifecycleMu.Unlock()

	if lb.server == nil {
		return lb.cfg.Server.Address
	}
	return lb.server.Addr()
}

// Stop halts health checking, closes every session, waits for their teardown
// and shuts down the listener. Later calls wait for the first Stop to finish
// and return nil, or return ctx's error if it expires first. Session closes
// run in parallel, and ctx bounds the whole wait.
func (lb *LoadBalancer) Stop(ctx context.Context) error {
	lb.lifecycleMu.Lock()
	if lb.stopped {
		lb.lifecycleMu.Unlock()
		select {
		case <-lb.stopDone:
			return nil
		default:
		}
		select {
		case <-lb.stopDone:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for stop: %w", ctx.Err())
		}
	}
	lb.stopped = true
	srv := lb.server
	lb.lifecycleMu.Unlock()

	defer close(lb.stopDone)

	lb.logger.Info("Stopping load balancer")

	lb.checker.Stop()

	lb.sessionsMu.Lock()
	lb.closing = true
	open := make([]*session.Session, 0, len(lb.sessions))
	for _, s := range lb.sessions {
		open = append(open, s)
	}
	lb.sessionsMu.Unlock()

	var errs []error

	done := make(chan struct{})
	go func() {
		defer close(done)

		var g errgroup.Group
		for _, s := range open {
			g.Go(func() error {
				s.Close(session.ReasonShutdown)
				return nil
			})
		}
		_ = g.Wait()

		lb.cancel()
		lb.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lb.cancel()
		errs = append(errs, fmt.Errorf("waiting for sessions: %w", ctx.Err()))
	}

	lb.sessionsMu.Lock()
	clear(lb.sessions)
	lb.sessionsMu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown listener: %w", err))
		}
	}

	lb.logger.Info("Load balancer stopped", slog.Int("closed_sessions", len(open)))

	return errors.Join(errs...)
}

// ServeHTTP handles one client connection from upgrade to teardown.
func (lb *LoadBalancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := ClientIP(r, lb.trusted)

	lb.logger.Info("Received connection",
		slog.String("from", clientIP),
		slog.String("path", r.URL.Path),
		slog.String("user_agent", r.UserAgent()))

	lb.collector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionReceived})

	if lb.limiter != nil && !lb.limiter.Allow(clientIP) {
		lb.logger.Warn("Rate limit exceeded", slog.String("client", clientIP))
		lb.reject("rate_limited")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	if lb.isClosing() {
		lb.reject("shutting_down")
		http.Error(w, "load balancer shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := lb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		lb.logger.Warn("WebSocket upgrade failed",
			slog.String("client", clientIP),
			slog.String("error", err.Error()))
		lb.reject("upgrade_failed")
		return
	}

	lb.mutex.Lock()
	chosen, err := lb.selectBackend(clientIP)
	if err != nil {
		lb.mutex.Unlock()
		lb.refuse(conn, clientIP)
		return
	}
	sess := session.New(conn, chosen, clientIP, lb.dialer, lb.logger,
		session.WithDropHandler(func(session.Direction) {
			lb.collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventMessageDropped,
				Backend: chosen.ID(),
			})
		}),
	)
	lb.mutex.Unlock()

	lb.logger.Info("Forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", chosen.ID()),
		slog.String("address", chosen.Address()),
		slog.String("session", sess.ID()))

	lb.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventBackendSelected,
		Backend: chosen.ID(),
	})

	tracked := lb.track(sess)
	if !tracked {
		sess.Close(session.ReasonShutdown)
	}

	reason := sess.Run(lb.ctx)

	if tracked {
		lb.untrack(sess)
	}

	lb.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventSessionClosed,
		Backend:  chosen.ID(),
		Duration: time.Since(sess.Info().ConnectedAt),
		Reason:   string(reason),
	})
}

// selectBackend must be called with lb.mutex held.
func (lb *LoadBalancer) selectBackend(clientIP string) (*backend.Backend, error) {
	healthy := lb.registry.Healthy()
	if len(healthy) == 0 {
		return nil, ErrNoHealthyBackend
	}

	chosen := lb.strategy.SelectBackend(healthy, clientIP)
	if chosen == nil {
		return nil, fmt.Errorf("%w: strategy %s returned no backend", ErrNoHealthyBackend, lb.strategy.Name())
	}

	return chosen, nil
}

func (lb *LoadBalancer) refuse(conn *websocket.Conn, clientIP string) {
	lb.logger.Warn("No healthy backends available", slog.String("client", clientIP))
	lb.reject("no_healthy_backend")

	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrNoHealthyBackend.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(rejectCloseTimeout))
	_ = conn.Close()
}

func (lb *LoadBalancer) reject(reason string) {
	lb.collector.Emit(metrics.MetricEvent{
		Type:   metrics.EventConnectionRejected,
		Reason: reason,
	})
}

func (lb *LoadBalancer) track(s *session.Session) bool {
	lb.sessionsMu.Lock()
	defer lb.sessionsMu.Unlock()

	if lb.closing {
		return false
	}
	lb.wg.Add(1)
	lb.sessions[s.ID()] = s
	return true
}

func (lb *LoadBalancer) untrack(s *session.Session) {
	lb.sessionsMu.Lock()
	delete(lb.sessions, s.ID())
	lb.sessionsMu.Unlock()

	lb.wg.Done()
}

func (lb *LoadBalancer) isClosing() bool {
	lb.sessionsMu.Lock()
	defer lb.sessionsMu.Unlock()
	return lb.closing
}
