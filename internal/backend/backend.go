package backend

import (
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Seed is the static description of a backend taken from configuration.
type Seed struct {
	ID     string
	Host   string
	Port   int
	Weight int
}

// Backend represents a backend server with health status and connection
// tracking. Identity fields are immutable; health and load are mutated by the
// health checker and by proxy sessions.
type Backend struct {
	id     string
	host   string
	port   int
	weight int

	mutex           sync.Mutex
	isHealthy       bool
	lastHealthCheck time.Time

	conns ConnCounter
}

// New creates a Backend from its seed. The backend starts in a healthy state
// so that it can take traffic before the first health check completes.
func New(seed Seed) *Backend {
	return &Backend{
		id:        seed.ID,
		host:      seed.Host,
		port:      seed.Port,
		weight:    seed.Weight,
		isHealthy: true,
	}
}

// ID returns the stable backend identifier.
func (b *Backend) ID() string {
	return b.id
}

// Host returns the backend host.
func (b *Backend) Host() string {
	return b.host
}

// Port returns the backend port.
func (b *Backend) Port() int {
	return b.port
}

// Weight returns the relative selection weight.
func (b *Backend) Weight() int {
	return b.weight
}

// Address returns host:port.
func (b *Backend) Address() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// URL returns the WebSocket URL used to reach the backend.
func (b *Backend) URL() *url.URL {
	return &url.URL{Scheme: "ws", Host: b.Address(), Path: "/"}
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.conns.Increment()
}

// DecrementConn decrements the active connection count. It never goes below zero.
func (b *Backend) DecrementConn() {
	b.conns.Decrement()
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int {
	return int(b.conns.Load())
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.isHealthy
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.isHealthy == healthy {
		return false
	}

	b.isHealthy = healthy
	return true
}

// RecordHealthCheck stores the outcome of a health check together with the
// time it completed. Returns true if the health status changed.
func (b *Backend) RecordHealthCheck(healthy bool, at time.Time) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	changed = b.isHealthy != healthy
	b.isHealthy = healthy
	b.lastHealthCheck = at
	return changed
}

// LastHealthCheck returns when the backend was last probed. The zero time
// means it has never been checked.
func (b *Backend) LastHealthCheck() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastHealthCheck
}
