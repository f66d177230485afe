package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

// weightedStrategy picks a backend at random with probability weight/total.
// One uniform draw in [0, total) is walked down the list, subtracting each
// weight until the remainder reaches zero.
type weightedStrategy struct {
	draw func() float64
}

// NewWeightedStrategy creates a weighted random strategy instance.
func NewWeightedStrategy() Strategy {
	return &weightedStrategy{draw: rand.Float64}
}

func (w *weightedStrategy) Name() string {
	return Weighted
}

func (w *weightedStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	totalWeight := 0
	for _, b := range backends {
		if weight := b.Weight(); weight > 0 {
			totalWeight += weight
		}
	}

	if totalWeight == 0 {
		return backends[0]
	}

	remaining := w.draw() * float64(totalWeight)
	for _, b := range backends {
		weight := b.Weight()
		if weight <= 0 {
			continue
		}

		remaining -= float64(weight)
		if remaining <= 0 {
			return b
		}
	}

	// Rounding left a sliver past the last weight.
	return backends[0]
}
