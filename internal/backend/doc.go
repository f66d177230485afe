// Package backend holds the pool of backend servers that client connections
// are relayed to. It provides health state, last-check timestamps and
// synchronized active-connection accounting for each backend.
package backend
