package loadbalancer

import (
	"time"

	"github.com/angeloszaimis/ws-balancer/internal/session"
)

type BackendStatus struct {
	ID                string    `json:"id"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	Healthy           bool      `json:"healthy"`
	ActiveConnections int       `json:"active_connections"`
	Weight            int       `json:"weight"`
	LastHealthCheck   time.Time `json:"last_health_check"`
}

type Status struct {
	Algorithm      string          `json:"algorithm"`
	ActiveSessions int             `json:"active_sessions"`
	Backends       []BackendStatus `json:"backends"`
}

// Status returns a point-in-time view of the pool. It has no side effects.
func (lb *LoadBalancer) Status() Status {
	lb.sessionsMu.Lock()
	active := len(lb.sessions)
	lb.sessionsMu.Unlock()

	all := lb.registry.All()
	backends := make([]BackendStatus, 0, len(all))
	for _, b := range all {
		backends = append(backends, BackendStatus{
			ID:                b.ID(),
			Host:              b.Host(),
			Port:              b.Port(),
			Healthy:           b.IsHealthy(),
			ActiveConnections: b.ActiveConnections(),
			Weight:            b.Weight(),
			LastHealthCheck:   b.LastHealthCheck(),
		})
	}

	return Status{
		Algorithm:      lb.strategy.Name(),
		ActiveSessions: active,
		Backends:       backends,
	}
}

// Sessions describes every open session.
func (lb *LoadBalancer) Sessions() []session.Info {
	lb.sessionsMu.Lock()
	defer lb.sessionsMu.Unlock()

	infos := make([]session.Info, 0, len(lb.sessions))
	for _, s := range lb.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// HasHealthyBackend reports whether at least one backend is healthy.
func (lb *LoadBalancer) HasHealthyBackend() bool {
	return len(lb.registry.Healthy()) > 0
}
