package strategy

import (
	"sync"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// roundRobinStrategy rotates over whatever subset is healthy at selection
// time. The cursor is kept modulo the size of the last subset it indexed.
type roundRobinStrategy struct {
	mutex  sync.Mutex
	cursor int
}

func (rb *roundRobinStrategy) Name() string {
	return RoundRobin
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	rb.mutex.Lock()
	index := rb.cursor % len(backends)
	rb.cursor = (index + 1) % len(backends)
	rb.mutex.Unlock()

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{
		cursor: 0,
	}
}
