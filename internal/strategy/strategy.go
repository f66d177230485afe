package strategy

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

const (
	RoundRobin       = "round-robin"
	LeastConnections = "least-connections"
	Weighted         = "weighted"
	IPHash           = "ip-hash"
)

// ErrUnknownAlgorithm is returned by New for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown load balancing algorithm")

// Strategy picks one backend for a new client connection.
type Strategy interface {
	// Name returns the configured algorithm name.
	Name() string
	// SelectBackend picks one of backends, which must all be healthy.
	// clientIP is only consulted by key-based strategies. Returns nil if
	// backends is empty.
	SelectBackend(backends []*backend.Backend, clientIP string) *backend.Backend
}

// Algorithms lists every supported algorithm name.
func Algorithms() []string {
	return []string{RoundRobin, LeastConnections, Weighted, IPHash}
}

// New creates the strategy registered under name.
func New(name string) (Strategy, error) {
	switch name {
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	case LeastConnections:
		return NewLeastConnStrategy(), nil
	case Weighted:
		return NewWeightedStrategy(), nil
	case IPHash:
		return NewIPHashStrategy(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
