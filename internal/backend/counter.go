package backend

import "sync/atomic"

// ConnCounter is a non-negative connection counter safe for concurrent use.
// Decrement is clamped at zero.
type ConnCounter struct {
	n atomic.Int64
}

// Increment adds one and returns the new value.
func (c *ConnCounter) Increment() int64 {
	return c.n.Add(1)
}

// Decrement subtracts one unless the counter is already zero. It reports
// whether a decrement happened.
func (c *ConnCounter) Decrement() bool {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return false
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Load returns the current value.
func (c *ConnCounter) Load() int64 {
	return c.n.Load()
}
