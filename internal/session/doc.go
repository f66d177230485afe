// Package session relays one client WebSocket connection to one backend.
//
// A Session owns both sockets. New counts it against the backend; Run starts
// reading from the client and dials the backend at the same time.
// Messages that arrive on one side while the other side is not open are
// dropped. When either side closes or fails, the other side receives a close
// frame and the backend's count is decremented exactly once.
package session
