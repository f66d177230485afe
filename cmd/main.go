package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ws-balancer/config"
	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/healthcheck"
	"github.com/angeloszaimis/ws-balancer/internal/httpserver"
	"github.com/angeloszaimis/ws-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/ws-balancer/internal/metrics"
	"github.com/angeloszaimis/ws-balancer/internal/ratelimit"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
	"github.com/angeloszaimis/ws-balancer/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Load balancer failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled and then shuts
// down. Only startup errors are returned.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	registry, err := initializeBackends(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize backends: %w", err)
	}

	strat, err := strategy.New(cfg.Strategy.Type)
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	collector := metrics.NewCollector(1000, log.With(slog.String("component", "metrics")))
	collector.TrackBackends(registry)
	collector.Start(ctx)

	checker := healthcheck.New(registry,
		healthcheck.Config{
			Interval: cfg.HealthCheck.IntervalDuration(),
			Timeout:  cfg.HealthCheck.TimeoutDuration(),
		},
		log,
		healthcheck.WithObserver(func(r healthcheck.Result) {
			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventHealthChecked,
				Timestamp: r.CheckedAt,
				Backend:   r.BackendID,
				Duration:  r.Duration,
				Healthy:   r.Healthy,
			})
		}),
	)

	opts := []loadbalancer.Option{
		loadbalancer.WithLogger(log),
		loadbalancer.WithMetrics(collector),
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, loadbalancer.WithRateLimiter(ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}

	lb := loadbalancer.New(cfg, registry, strat, checker, opts...)
	// Shutdown is driven below so that it runs under shutdownTimeout.
	if err := lb.Start(context.Background()); err != nil {
		return err
	}

	var monitor *httpserver.Server
	if cfg.Monitoring.Enabled {
		monitor, err = httpserver.New(cfg.Monitoring.Address,
			setupMonitoringRouter(log, lb, collector, strat.Name()))
		if err == nil {
			err = monitor.Listen()
		}
		if err != nil {
			_ = lb.Stop(context.Background())
			return fmt.Errorf("monitoring server: %w", err)
		}
		log.Info("Monitoring server started", slog.String("address", monitor.Addr()))
	}

	g, gctx := errgroup.WithContext(ctx)

	if monitor != nil {
		g.Go(monitor.Serve)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := lb.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if monitor != nil {
			if err := monitor.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return nil
	})

	return g.Wait()
}

func initializeBackends(cfg *config.Config, log *slog.Logger) (*backend.Registry, error) {
	registry, err := backend.NewRegistry(cfg.Seeds())
	if err != nil {
		return nil, err
	}

	if registry.Len() == 0 {
		return nil, os.ErrInvalid
	}

	for _, b := range registry.All() {
		log.Info("Registered backend",
			slog.String("id", b.ID()),
			slog.String("address", b.Address()),
			slog.Int("weight", b.Weight()))
	}

	return registry, nil
}
