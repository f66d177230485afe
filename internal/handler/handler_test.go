package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/handler"
	"github.com/angeloszaimis/ws-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/ws-balancer/internal/session"
)

type fakeBalancer struct {
	status   loadbalancer.Status
	sessions []session.Info
	healthy  bool
}

func (f *fakeBalancer) Status() loadbalancer.Status { return f.status }
func (f *fakeBalancer) Sessions() []session.Info    { return f.sessions }
func (f *fakeBalancer) HasHealthyBackend() bool     { return f.healthy }

var _ = Describe("MonitoringHandler", func() {
	var (
		balancer *fakeBalancer
		h        *handler.MonitoringHandler
		rec      *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		balancer = &fakeBalancer{
			status: loadbalancer.Status{
				Algorithm:      "least-connections",
				ActiveSessions: 2,
				Backends: []loadbalancer.BackendStatus{
					{ID: "backend-0", Host: "10.0.0.1", Port: 8081, Healthy: true, ActiveConnections: 2, Weight: 1},
					{ID: "backend-1", Host: "10.0.0.2", Port: 8082, Healthy: false, Weight: 3},
				},
			},
			healthy: true,
		}
		h = handler.NewMonitoringHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), balancer)
		rec = httptest.NewRecorder()
	})

	Describe("Status", func() {
		It("serves the status as JSON", func() {
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var got loadbalancer.Status
			Expect(json.NewDecoder(rec.Body).Decode(&got)).To(Succeed())
			Expect(got).To(Equal(balancer.status))
		})

		It("uses snake_case keys", func() {
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			Expect(rec.Body.String()).To(ContainSubstring(`"active_connections":2`))
			Expect(rec.Body.String()).To(ContainSubstring(`"algorithm":"least-connections"`))
		})
	})

	Describe("Sessions", func() {
		It("lists open sessions", func() {
			connectedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
			balancer.sessions = []session.Info{{
				ID:           "9b2f8f5e-3c47-4df4-8d7a-4f1b0d0c2a11",
				BackendID:    "backend-0",
				ClientIP:     "203.0.113.5",
				ConnectedAt:  connectedAt,
				LastActivity: connectedAt,
			}}

			h.Sessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

			var got []session.Info
			Expect(json.NewDecoder(rec.Body).Decode(&got)).To(Succeed())
			Expect(got).To(Equal(balancer.sessions))
		})
	})

	Describe("Healthz", func() {
		It("answers 200 while a backend is healthy", func() {
			h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("answers 503 when every backend is down", func() {
			balancer.healthy = false
			h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("unavailable"))
		})
	})
})
