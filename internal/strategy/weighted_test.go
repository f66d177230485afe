package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

var _ = Describe("WeightedStrategy", func() {
	Context("with different weights", func() {
		It("should converge to weight ratios", func() {
			strat := strategy.NewWeightedStrategy()
			backends := newBackends(5, 3, 2)

			counts := make(map[*backend.Backend]int)
			iterations := 20000
			for i := 0; i < iterations; i++ {
				b := strat.SelectBackend(backends, "")
				Expect(b).NotTo(BeNil())
				counts[b]++
			}

			Expect(float64(counts[backends[0]]) / float64(iterations)).To(BeNumerically("~", 0.5, 0.03))
			Expect(float64(counts[backends[1]]) / float64(iterations)).To(BeNumerically("~", 0.3, 0.03))
			Expect(float64(counts[backends[2]]) / float64(iterations)).To(BeNumerically("~", 0.2, 0.03))
		})
	})

	Context("with a fixed draw", func() {
		DescribeTable("walks the weights until the remainder reaches zero",
			func(draw float64, expected int) {
				backends := newBackends(1, 2, 1)
				strat := strategy.NewWeightedStrategyWithRand(func() float64 { return draw })
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[expected]))
			},
			Entry("start of range", 0.0, 0),
			Entry("exactly the first boundary", 0.25, 0),
			Entry("inside the second weight", 0.5, 1),
			Entry("second boundary", 0.75, 1),
			Entry("inside the last weight", 0.9, 2),
		)
	})

	Context("edge cases", func() {
		It("should return nil for empty backends", func() {
			strat := strategy.NewWeightedStrategy()
			Expect(strat.SelectBackend([]*backend.Backend{}, "")).To(BeNil())
		})

		It("should handle single backend", func() {
			strat := strategy.NewWeightedStrategy()
			backends := newBackends(10)
			for i := 0; i < 10; i++ {
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[0]))
			}
		})

		It("should skip backends with zero weight", func() {
			strat := strategy.NewWeightedStrategy()
			backends := newBackends(0, 5, 0)
			for i := 0; i < 100; i++ {
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[1]))
			}
		})

		It("should fall back to the first backend when all weights are zero", func() {
			strat := strategy.NewWeightedStrategy()
			backends := newBackends(0, 0)
			Expect(strat.SelectBackend(backends, "")).To(Equal(backends[0]))
		})

		It("should fall back to the first backend when the draw overshoots", func() {
			strat := strategy.NewWeightedStrategyWithRand(func() float64 { return 1.5 })
			backends := newBackends(1, 1)
			Expect(strat.SelectBackend(backends, "")).To(Equal(backends[0]))
		})
	})
})
