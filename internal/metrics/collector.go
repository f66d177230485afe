package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

type EventType string

const (
	EventConnectionReceived EventType = "connection_received"
	EventConnectionRejected EventType = "connection_rejected"
	EventBackendSelected    EventType = "backend_selected"
	EventSessionClosed      EventType = "session_closed"
	EventMessageDropped     EventType = "message_dropped"
	EventHealthChecked      EventType = "health_checked"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Duration  time.Duration
	Healthy   bool
	Reason    string
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: NewPrometheus(prometheus.NewRegistry()),
		logger:     logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. A nil collector discards it; a full
// buffer drops it and counts the loss.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.prometheus.eventsDropped.Inc()
	}
}

// TrackBackends exports the live connection count of every backend in
// registry.
func (c *Collector) TrackBackends(registry *backend.Registry) {
	c.prometheus.TrackBackends(registry)
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	c.prometheus.Observe(event)

	switch event.Type {
	case EventConnectionReceived:
		c.metrics.IncrementConnections()

	case EventConnectionRejected:
		c.metrics.RecordRejection(event.Reason)

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventSessionClosed:
		c.metrics.RecordSessionClosed(event.Backend, event.Duration, event.Reason)

	case EventMessageDropped:
		c.metrics.RecordDroppedMessage(event.Backend)

	case EventHealthChecked:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
