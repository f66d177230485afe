package strategy

import (
	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

type leastConnStrategy struct {
}

func (l *leastConnStrategy) Name() string {
	return LeastConnections
}

// SelectBackend returns the backend with the fewest active connections.
// Strict comparison keeps the first backend on ties.
func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	bestBackend := backends[0]
	bestConns := bestBackend.ActiveConnections()

	for _, b := range backends[1:] {
		activeConns := b.ActiveConnections()
		if activeConns < bestConns {
			bestConns = activeConns
			bestBackend = b
		}
	}

	return bestBackend
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
