// Package irq models the controller's interrupt sources.
//
// A Vector is a one-deep pending latch: raising an already-pending vector
// coalesces into the existing request, the way a hardware interrupt flag
// does. The Controller models the global interrupt-enable flag; while
// interrupts are disabled, Raise blocks until they are re-enabled.
//
// Handlers are not called from here. The control loop receives from each
// vector's channel and runs one handler at a time, so a handler always runs
// to completion and never re-enters.
package irq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Controller is the global interrupt-enable flag.
type Controller struct {
	mu sync.Mutex
}

// NewController returns a Controller with interrupts enabled.
func NewController() *Controller {
	return &Controller{}
}

// Disable masks all vectors. Must be paired with Enable.
func (c *Controller) Disable() { c.mu.Lock() }

// Enable unmasks all vectors.
func (c *Controller) Enable() { c.mu.Unlock() }

// Vector is a single interrupt source.
type Vector struct {
	name      string
	ctrl      *Controller
	pending   chan struct{}
	raised    atomic.Uint64
	coalesced atomic.Uint64
}

// NewVector creates a vector attached to c.
func (c *Controller) NewVector(name string) *Vector {
	return &Vector{
		name:    name,
		ctrl:    c,
		pending: make(chan struct{}, 1),
	}
}

// Name returns the vector's name.
func (v *Vector) Name() string { return v.name }

// C returns the channel the control loop receives pending requests from.
func (v *Vector) C() <-chan struct{} { return v.pending }

// Raise latches a request. It never blocks on the receiver, only on a
// disabled Controller.
func (v *Vector) Raise() {
	v.ctrl.mu.Lock()
	defer v.ctrl.mu.Unlock()

	v.raised.Add(1)
	select {
	case v.pending <- struct{}{}:
	default:
		v.coalesced.Add(1)
	}
}

// Raised returns how many times Raise was called.
func (v *Vector) Raised() uint64 { return v.raised.Load() }

// Coalesced returns how many raises found the vector already pending.
func (v *Vector) Coalesced() uint64 { return v.coalesced.Load() }

// Every raises v once per period until ctx is cancelled. It blocks, so run
// it in its own goroutine.
func (v *Vector) Every(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Raise()
		}
	}
}
