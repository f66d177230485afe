// Package metrics collects load balancer metrics from a channel of events.
//
// Components emit events without blocking:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventSessionClosed,
//		Backend:  "backend-0",
//		Duration: 90 * time.Second,
//		Reason:   "client_closed",
//	})
//
// A single goroutine applies events to an in-memory Metrics store, which backs
// the JSON summary, and to Prometheus collectors registered on the
// collector's own registry, which back the /metrics endpoint. Events that do
// not fit in the buffer are dropped rather than slowing down a connection.
package metrics
