package ratelimit_test

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ws-balancer/internal/ratelimit"
)

var _ = Describe("Limiter", func() {
	var (
		clock   *clockwork.FakeClock
		limiter *ratelimit.Limiter
	)

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		limiter = ratelimit.New(1, 2, ratelimit.WithClock(clock), ratelimit.WithIdleTimeout(time.Minute))
	})

	It("allows a burst then throttles", func() {
		Expect(limiter.Allow("198.51.100.1")).To(BeTrue())
		Expect(limiter.Allow("198.51.100.1")).To(BeTrue())
		Expect(limiter.Allow("198.51.100.1")).To(BeFalse())
	})

	It("refills at the sustained rate", func() {
		limiter.Allow("198.51.100.1")
		limiter.Allow("198.51.100.1")
		Expect(limiter.Allow("198.51.100.1")).To(BeFalse())

		clock.Advance(time.Second)

		Expect(limiter.Allow("198.51.100.1")).To(BeTrue())
		Expect(limiter.Allow("198.51.100.1")).To(BeFalse())
	})

	It("keeps separate buckets per IP", func() {
		limiter.Allow("198.51.100.1")
		limiter.Allow("198.51.100.1")
		Expect(limiter.Allow("198.51.100.1")).To(BeFalse())

		Expect(limiter.Allow("198.51.100.2")).To(BeTrue())
		Expect(limiter.Len()).To(Equal(2))
	})

	It("purges idle IPs", func() {
		limiter.Allow("198.51.100.1")
		clock.Advance(30 * time.Second)
		limiter.Allow("198.51.100.2")
		clock.Advance(45 * time.Second)

		Expect(limiter.Purge()).To(Equal(1))
		Expect(limiter.Len()).To(Equal(1))
	})

	It("purges periodically once started", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		limiter.Allow("198.51.100.1")
		limiter.Start(ctx)

		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
		clock.Advance(5 * time.Minute)

		Eventually(limiter.Len).Should(BeZero())
	})
})
