// Package healthcheck implements periodic health checking for backend servers.
// Every tick it probes all backends concurrently, each probe bounded by a
// timeout, and records the outcome and check time on the backend.
package healthcheck
