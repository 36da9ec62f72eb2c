// Package clock abstracts time so that delays and timestamps are injectable.
// Production code uses Real or Spin; tests use Fake.
package clock

import "time"

// Clock provides the current time and a blocking delay.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real uses the system clock and time.Sleep.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d using the runtime timer.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Spin busy-waits on the monotonic clock instead of parking the goroutine.
// The runtime timer has too much jitter for serial bit periods.
type Spin struct{}

// Now returns time.Now().
func (Spin) Now() time.Time { return time.Now() }

// Sleep spins until d has elapsed.
func (Spin) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
