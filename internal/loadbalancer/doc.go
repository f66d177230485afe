// Package loadbalancer accepts client WebSocket connections, picks a healthy
// backend for each with the configured strategy and relays the connection to
// it for its whole lifetime.
//
// The LoadBalancer ties together the backend registry, a selection strategy,
// the health checker and one proxy session per client:
//
//	lb := loadbalancer.New(cfg, registry, strat, checker,
//		loadbalancer.WithLogger(logger),
//		loadbalancer.WithMetrics(collector),
//	)
//	if err := lb.Start(ctx); err != nil {
//		// the listener could not be bound
//	}
//	defer lb.Stop(context.Background())
//
// Clients that arrive while no backend is healthy are upgraded and closed at
// once with close code 1013 (try again later).
package loadbalancer
