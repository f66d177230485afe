package strategy_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

var _ = Describe("IPHash", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewIPHashStrategy()
		backends = newBackends(1, 1, 1)
	})

	Describe("HashIP", func() {
		DescribeTable("matches the 31-multiplier polynomial hash",
			func(input string, expected int32) {
				Expect(strategy.HashIP(input)).To(Equal(expected))
			},
			Entry("empty", "", int32(0)),
			Entry("single char", "a", int32(97)),
			Entry("two chars", "ab", int32(97*31+98)),
			Entry("wraps to MinInt32", "polygenelubricants", int32(math.MinInt32)),
		)
	})

	Describe("SelectBackend", func() {
		It("should return same backend for same IP", func() {
			ip := "192.168.1.100"
			first := strat.SelectBackend(backends, ip)
			Expect(first).NotTo(BeNil())

			for i := 0; i < 5; i++ {
				Expect(strat.SelectBackend(backends, ip)).To(Equal(first))
			}
		})

		It("should index by absolute hash modulo the healthy set", func() {
			ip := "10.0.0.7"
			h := int64(strategy.HashIP(ip))
			if h < 0 {
				h = -h
			}
			Expect(strat.SelectBackend(backends, ip)).To(Equal(backends[h%3]))
		})

		It("should not overflow on MinInt32 hashes", func() {
			two := newBackends(1, 1)
			Expect(strat.SelectBackend(two, "polygenelubricants")).To(Equal(two[0]))
		})

		It("should spread different clients across backends", func() {
			seen := make(map[*backend.Backend]bool)
			for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
				seen[strat.SelectBackend(backends, ip)] = true
			}
			Expect(len(seen)).To(BeNumerically(">=", 2))
		})

		It("should return nil for empty backend list", func() {
			Expect(strat.SelectBackend(nil, "10.0.0.1")).To(BeNil())
		})
	})
})
