package logic

import "sync/atomic"

// Counter is the elapsed-tick count shared between the timer source, the
// control loop and status readers. Every access is a single atomic
// operation; the value wraps at 2^32.
type Counter struct {
	v atomic.Uint32
}

// Increment adds one tick and returns the new value.
func (c *Counter) Increment() uint32 {
	return c.v.Add(1)
}

// Reset sets the count to zero.
func (c *Counter) Reset() {
	c.v.Store(0)
}

// Load returns the current count.
func (c *Counter) Load() uint32 {
	return c.v.Load()
}
