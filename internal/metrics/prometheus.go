package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// Prometheus holds the exported collectors. They are registered on a private
// registry so that several balancers can live in one process (and in tests).
type Prometheus struct {
	registry *prometheus.Registry

	connections     *prometheus.CounterVec
	selections      *prometheus.CounterVec
	sessionsClosed  *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	droppedMessages *prometheus.CounterVec
	backendHealth   *prometheus.GaugeVec
	healthChecks    *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

func NewPrometheus(registry *prometheus.Registry) *Prometheus {
	p := &Prometheus{
		registry: registry,
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbalancer_connections_total",
			Help: "Inbound connection attempts by outcome",
		}, []string{"outcome"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbalancer_backend_selections_total",
			Help: "Number of new connections assigned to each backend",
		}, []string{"backend"}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbalancer_sessions_closed_total",
			Help: "Proxy sessions closed per backend and reason",
		}, []string{"backend", "reason"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsbalancer_session_duration_seconds",
			Help:    "Lifetime of proxy sessions",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"backend"}),
		droppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbalancer_messages_dropped_total",
			Help: "Messages dropped because the peer connection was not open",
		}, []string{"backend"}),
		backendHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wsbalancer_backend_healthy",
			Help: "Backend health status (1 = healthy, 0 = unhealthy)",
		}, []string{"backend"}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbalancer_health_checks_total",
			Help: "Health probes per backend and result",
		}, []string{"backend", "result"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsbalancer_metric_events_dropped_total",
			Help: "Metric events discarded because the collector buffer was full",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.connections,
		p.selections,
		p.sessionsClosed,
		p.sessionDuration,
		p.droppedMessages,
		p.backendHealth,
		p.healthChecks,
		p.eventsDropped,
	)

	return p
}

func (p *Prometheus) Observe(event MetricEvent) {
	switch event.Type {
	case EventConnectionReceived:
		p.connections.WithLabelValues("received").Inc()

	case EventConnectionRejected:
		p.connections.WithLabelValues("rejected").Inc()

	case EventBackendSelected:
		p.connections.WithLabelValues("proxied").Inc()
		p.selections.WithLabelValues(event.Backend).Inc()

	case EventSessionClosed:
		p.sessionsClosed.WithLabelValues(event.Backend, event.Reason).Inc()
		p.sessionDuration.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())

	case EventMessageDropped:
		p.droppedMessages.WithLabelValues(event.Backend).Inc()

	case EventHealthChecked:
		result, value := "unhealthy", 0.0
		if event.Healthy {
			result, value = "healthy", 1.0
		}
		p.backendHealth.WithLabelValues(event.Backend).Set(value)
		p.healthChecks.WithLabelValues(event.Backend, result).Inc()
	}
}

// TrackBackends exports each backend's live connection count as
// wsbalancer_active_sessions. The value is read at scrape time, so it never
// drifts from the registry.
func (p *Prometheus) TrackBackends(registry *backend.Registry) {
	for _, b := range registry.All() {
		p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "wsbalancer_active_sessions",
			Help:        "Proxy sessions currently open per backend",
			ConstLabels: prometheus.Labels{"backend": b.ID()},
		}, func() float64 {
			return float64(b.ActiveConnections())
		}))
	}
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
