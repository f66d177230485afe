package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/ws-balancer/internal/handler"
	"github.com/angeloszaimis/ws-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/ws-balancer/internal/metrics"
)

func setupMonitoringRouter(log *slog.Logger, lb *loadbalancer.LoadBalancer, metricsCollector *metrics.Collector, strategy string) *http.ServeMux {
	monitoring := handler.NewMonitoringHandler(log, lb)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", monitoring.Status)
	mux.HandleFunc("GET /sessions", monitoring.Sessions)
	mux.HandleFunc("GET /healthz", monitoring.Healthz)
	mux.Handle("GET /metrics", metricsCollector.PrometheusHandler())
	mux.HandleFunc("GET /metrics/summary", metricsCollector.Handler(strategy))

	return mux
}
