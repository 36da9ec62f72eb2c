// Package status provides a thread-safe status tracker for the feeder daemon.
// It is written by the control loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/feeder/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	BaseIntervalSec uint32
	BlockSec        uint32
	PollTicks       uint32
	TickMs          int64
	DispenseMs      int64
	Broker          string
	HTTPAddr        string
	Debug           bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State logic.State
	Ticks uint32
	// Decision is the outcome of the most recent evaluate cycle.
	Decision      logic.Decision
	Evaluated     bool
	PowerOn       bool
	MotorOn       bool
	Counts        logic.EventCounts
	LastDispense  time.Time
	LastOverride  time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     logic.StateBootInit,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetState records the control loop phase and the current counter value.
func (t *Tracker) SetState(state logic.State, ticks uint32) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Ticks = ticks
	t.mu.Unlock()
}

// SetOutputs records the power-gate and motor levels.
func (t *Tracker) SetOutputs(powerOn, motorOn bool) {
	t.mu.Lock()
	t.snap.PowerOn = powerOn
	t.snap.MotorOn = motorOn
	t.mu.Unlock()
}

// RecordDecision stores the outcome of an evaluate cycle.
func (t *Tracker) RecordDecision(d logic.Decision) {
	t.mu.Lock()
	t.snap.Decision = d
	t.snap.Evaluated = true
	t.snap.Counts.Evaluations++
	t.mu.Unlock()
}

// RecordEvent counts a completed dispense or override.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	switch e.Type {
	case logic.EventDispense:
		t.snap.Counts.Dispenses++
		t.snap.LastDispense = e.Timestamp
	case logic.EventOverride:
		t.snap.Counts.Overrides++
		t.snap.LastOverride = e.Timestamp
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
