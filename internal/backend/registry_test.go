package backend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

var _ = Describe("Registry", func() {
	var (
		registry *backend.Registry
		seeds    []backend.Seed
	)

	BeforeEach(func() {
		seeds = []backend.Seed{
			{ID: "backend-0", Host: "localhost", Port: 8081, Weight: 1},
			{ID: "backend-1", Host: "localhost", Port: 8082, Weight: 1},
			{ID: "backend-2", Host: "localhost", Port: 8083, Weight: 1},
		}
		var err error
		registry, err = backend.NewRegistry(seeds)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should preserve seed order", func() {
		all := registry.All()
		Expect(all).To(HaveLen(3))
		for i, b := range all {
			Expect(b.ID()).To(Equal(seeds[i].ID))
		}
		Expect(registry.Len()).To(Equal(3))
	})

	It("should reject duplicate ids", func() {
		_, err := backend.NewRegistry([]backend.Seed{
			{ID: "a", Host: "localhost", Port: 1, Weight: 1},
			{ID: "a", Host: "localhost", Port: 2, Weight: 1},
		})
		Expect(err).To(MatchError(backend.ErrDuplicateID))
	})

	It("should look backends up by id", func() {
		b, ok := registry.Get("backend-1")
		Expect(ok).To(BeTrue())
		Expect(b.Port()).To(Equal(8082))

		_, ok = registry.Get("missing")
		Expect(ok).To(BeFalse())
	})

	Describe("Healthy", func() {
		It("should return only healthy backends in registry order", func() {
			all := registry.All()
			all[1].SetHealthy(false)

			healthy := registry.Healthy()
			Expect(healthy).To(HaveLen(2))
			Expect(healthy[0].ID()).To(Equal("backend-0"))
			Expect(healthy[1].ID()).To(Equal("backend-2"))
		})

		It("should return an empty slice when nothing is healthy", func() {
			for _, b := range registry.All() {
				b.SetHealthy(false)
			}
			Expect(registry.Healthy()).To(BeEmpty())
		})
	})

	It("should hand out a copy of the backend list", func() {
		all := registry.All()
		all[0] = nil
		Expect(registry.All()[0]).NotTo(BeNil())
	})
})
