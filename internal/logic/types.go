// Package logic contains the pure scheduling rules of the feeder.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is a phase of the control loop.
type State string

const (
	StateBootInit     State = "BOOT_INIT"
	StateWakeupWiggle State = "WAKEUP_WIGGLE"
	StateSleep        State = "SLEEP"
	StateEvaluate     State = "EVALUATE"
	StateDispense     State = "DISPENSE"
	StateOverride     State = "OVERRIDE"
)

// EventType identifies a published feeder event.
type EventType string

const (
	EventDispense EventType = "DISPENSE"
	EventOverride EventType = "OVERRIDE"
)

// Event is a completed action to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Ticks is the counter value when the action started.
	Ticks     uint32
	Speed     uint8
	Threshold uint32
	// Duration is how long the motor ran.
	Duration time.Duration
}

// Decision is the outcome of one evaluate cycle.
type Decision struct {
	Ticks     uint32
	Speed     uint8
	Threshold uint32
	// Remaining is Threshold - Ticks; zero or negative means due.
	Remaining int64
	Dispense  bool
}

// EventCounts tracks the number of each action since startup.
type EventCounts struct {
	Evaluations int
	Dispenses   int
	Overrides   int
}
