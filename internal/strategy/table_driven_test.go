package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

var _ = Describe("Table-Driven Strategy Tests", func() {
	DescribeTable("New builds every supported algorithm",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(strat.Name()).To(Equal(name))
		},
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Least Connections", strategy.LeastConnections),
		Entry("Weighted", strategy.Weighted),
		Entry("IP Hash", strategy.IPHash),
	)

	It("rejects unknown algorithms", func() {
		_, err := strategy.New("random")
		Expect(err).To(MatchError(strategy.ErrUnknownAlgorithm))
	})

	It("lists the four algorithms", func() {
		Expect(strategy.Algorithms()).To(ConsistOf(
			strategy.RoundRobin, strategy.LeastConnections, strategy.Weighted, strategy.IPHash))
	})

	DescribeTable("All strategies select from the given backends",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(err).NotTo(HaveOccurred())

			backends := newBackends(1, 1, 1)
			selected := strat.SelectBackend(backends, "127.0.0.1")
			Expect(selected).NotTo(BeNil())
			Expect(backends).To(ContainElement(selected))
		},
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Least Connections", strategy.LeastConnections),
		Entry("Weighted", strategy.Weighted),
		Entry("IP Hash", strategy.IPHash),
	)

	DescribeTable("All strategies return nil when nothing is healthy",
		func(name string) {
			strat, err := strategy.New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(strat.SelectBackend(nil, "127.0.0.1")).To(BeNil())
		},
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Least Connections", strategy.LeastConnections),
		Entry("Weighted", strategy.Weighted),
		Entry("IP Hash", strategy.IPHash),
	)
})
