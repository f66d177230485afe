package backend_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
)

var _ = Describe("Backend", func() {
	var b *backend.Backend

	BeforeEach(func() {
		b = backend.New(backend.Seed{ID: "backend-0", Host: "localhost", Port: 8081, Weight: 2})
	})

	Describe("New", func() {
		It("should keep the seed identity", func() {
			Expect(b.ID()).To(Equal("backend-0"))
			Expect(b.Host()).To(Equal("localhost"))
			Expect(b.Port()).To(Equal(8081))
			Expect(b.Weight()).To(Equal(2))
		})

		It("should initialize as healthy and never checked", func() {
			Expect(b.IsHealthy()).To(BeTrue())
			Expect(b.LastHealthCheck().IsZero()).To(BeTrue())
		})

		It("should have zero active connections", func() {
			Expect(b.ActiveConnections()).To(Equal(0))
		})

		It("should build a websocket URL", func() {
			Expect(b.Address()).To(Equal("localhost:8081"))
			Expect(b.URL().String()).To(Equal("ws://localhost:8081/"))
		})

		It("should bracket IPv6 hosts", func() {
			v6 := backend.New(backend.Seed{ID: "v6", Host: "::1", Port: 9000, Weight: 1})
			Expect(v6.Address()).To(Equal("[::1]:9000"))
		})
	})

	Describe("Health Management", func() {
		It("should report a change only when the status flips", func() {
			Expect(b.SetHealthy(true)).To(BeFalse())
			Expect(b.SetHealthy(false)).To(BeTrue())
			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.SetHealthy(false)).To(BeFalse())
		})

		It("should record the outcome and timestamp together", func() {
			at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			changed := b.RecordHealthCheck(false, at)
			Expect(changed).To(BeTrue())
			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.LastHealthCheck()).To(Equal(at))

			later := at.Add(time.Second)
			changed = b.RecordHealthCheck(false, later)
			Expect(changed).To(BeFalse())
			Expect(b.LastHealthCheck()).To(Equal(later))
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(healthy bool) {
					defer wg.Done()
					b.RecordHealthCheck(healthy, time.Now())
					_ = b.IsHealthy()
				}(i%2 == 0)
			}
			wg.Wait()
		})
	})

	Describe("Connection Tracking", func() {
		It("should increase and decrease the active connection count", func() {
			b.IncrementConn()
			b.IncrementConn()
			b.IncrementConn()
			Expect(b.ActiveConnections()).To(Equal(3))

			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(2))
		})

		It("should not go below zero", func() {
			b.DecrementConn()
			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(0))
		})

		It("should balance concurrent increments and decrements", func() {
			var wg sync.WaitGroup
			for i := 0; i < 200; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.IncrementConn()
					b.DecrementConn()
				}()
			}
			wg.Wait()
			Expect(b.ActiveConnections()).To(Equal(0))
		})
	})
})

var _ = Describe("ConnCounter", func() {
	It("should clamp decrements at zero and report them", func() {
		var c backend.ConnCounter
		Expect(c.Decrement()).To(BeFalse())
		Expect(c.Increment()).To(Equal(int64(1)))
		Expect(c.Decrement()).To(BeTrue())
		Expect(c.Decrement()).To(BeFalse())
		Expect(c.Load()).To(Equal(int64(0)))
	})

	It("should never go negative under racing decrements", func() {
		var c backend.ConnCounter
		for i := 0; i < 10; i++ {
			c.Increment()
		}

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Decrement()
			}()
		}
		wg.Wait()
		Expect(c.Load()).To(Equal(int64(0)))
	})
})
