package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

var _ = Describe("Roundrobin", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		backends = newBackends(1, 1, 1)
	})

	Describe("SelectBackend", func() {
		Context("with a fixed healthy set", func() {
			It("should cycle through backends in order", func() {
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[0]))
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[1]))
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[2]))
				Expect(strat.SelectBackend(backends, "")).To(Equal(backends[0]))
			})

			It("should advance by exactly one each call", func() {
				indexOf := func(b *backend.Backend) int {
					for i, candidate := range backends {
						if candidate == b {
							return i
						}
					}
					return -1
				}

				prev := indexOf(strat.SelectBackend(backends, ""))
				for i := 0; i < 20; i++ {
					next := indexOf(strat.SelectBackend(backends, ""))
					Expect(next).To(Equal((prev + 1) % len(backends)))
					prev = next
				}
			})

			It("should choose every backend exactly once per N calls", func() {
				counts := make(map[string]int)
				for i := 0; i < 300; i++ {
					counts[strat.SelectBackend(backends, "").ID()]++
				}
				Expect(counts["backend-0"]).To(Equal(100))
				Expect(counts["backend-1"]).To(Equal(100))
				Expect(counts["backend-2"]).To(Equal(100))
			})
		})

		Context("when the healthy set shrinks", func() {
			It("should rotate over the smaller set", func() {
				strat.SelectBackend(backends, "")
				strat.SelectBackend(backends, "")

				smaller := []*backend.Backend{backends[0], backends[2]}
				first := strat.SelectBackend(smaller, "")
				second := strat.SelectBackend(smaller, "")
				Expect(first).NotTo(Equal(second))
				Expect(smaller).To(ContainElements(first, second))
			})
		})

		Context("with empty backend list", func() {
			It("should return nil", func() {
				Expect(strat.SelectBackend([]*backend.Backend{}, "")).To(BeNil())
			})
		})

		Context("under concurrent use", func() {
			It("should still hand out an even distribution", func() {
				results := make(chan *backend.Backend, 300)
				done := make(chan struct{})

				for g := 0; g < 10; g++ {
					go func() {
						defer GinkgoRecover()
						for i := 0; i < 30; i++ {
							results <- strat.SelectBackend(backends, "")
						}
						done <- struct{}{}
					}()
				}
				for g := 0; g < 10; g++ {
					<-done
				}
				close(results)

				counts := make(map[*backend.Backend]int)
				for b := range results {
					counts[b]++
				}
				for _, b := range backends {
					Expect(counts[b]).To(Equal(100))
				}
			})
		})
	})
})
