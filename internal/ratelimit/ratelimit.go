// Package ratelimit throttles new connections per client IP with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	defaultPurgeInterval = 5 * time.Minute
	defaultIdleTimeout   = 10 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Option func(*Limiter)

func WithClock(clock clockwork.Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithIdleTimeout sets how long an IP may stay silent before its bucket is
// forgotten.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		l.idleTimeout = d
	}
}

// Limiter keeps one token bucket per client IP: rps tokens per second
// sustained, up to burst at once.
type Limiter struct {
	rps         rate.Limit
	burst       int
	clock       clockwork.Clock
	idleTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*ipEntry
}

func New(rps float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		rps:         rate.Limit(rps),
		burst:       burst,
		clock:       clockwork.NewRealClock(),
		idleTimeout: defaultIdleTimeout,
		entries:     make(map[string]*ipEntry),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow reports whether a new connection from ip may proceed now.
func (l *Limiter) Allow(ip string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Purge removes buckets idle for longer than the idle timeout and returns how
// many were removed.
func (l *Limiter) Purge() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTimeout {
			delete(l.entries, ip)
			removed++
		}
	}

	return removed
}

// Len is the number of tracked IPs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start purges idle entries periodically until ctx is done.
func (l *Limiter) Start(ctx context.Context) {
	ticker := l.clock.NewTicker(defaultPurgeInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.Purge()
			}
		}
	}()
}
