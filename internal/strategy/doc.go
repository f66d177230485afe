// Package strategy defines the backend selection interface and implements
// the four supported algorithms:
//
//   - Round Robin: rotates over the currently healthy backends
//   - Least Connections: fewest active connections, ties go to the first backend
//   - Weighted: random pick with probability proportional to backend weight
//   - IP Hash: polynomial hash of the client IP modulo the healthy set size
//
// Strategies only ever see the healthy subset; an empty subset yields nil.
package strategy
