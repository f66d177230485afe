package strategy

// NewWeightedStrategyWithRand builds a weighted strategy that draws from
// draw instead of math/rand.
func NewWeightedStrategyWithRand(draw func() float64) Strategy {
	return &weightedStrategy{draw: draw}
}
