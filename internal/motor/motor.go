// Package motor drives the dispense actuator.
//
// There is no feedback sensor: a dispense that jams or runs dry is
// indistinguishable from a good one.
package motor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/feeder/internal/clock"
	"github.com/sweeney/feeder/internal/gpio"
)

// Config holds actuator timing.
type Config struct {
	// Granule is the step a dispense delay is consumed in.
	Granule time.Duration
	// PulseOn and PulseOff shape one wake-up pulse.
	PulseOn  time.Duration
	PulseOff time.Duration
	// Pulses is the number of wake-up pulse/pause cycles.
	Pulses int
}

// DefaultConfig returns the standard actuator timing.
func DefaultConfig() Config {
	return Config{
		Granule:  15 * time.Millisecond,
		PulseOn:  100 * time.Millisecond,
		PulseOff: 75 * time.Millisecond,
		Pulses:   6,
	}
}

// Driver switches the motor-enable line.
type Driver struct {
	line    gpio.Output
	clock   clock.Clock
	cfg     Config
	running atomic.Bool
}

// New creates a Driver. A zero Granule falls back to the default.
func New(line gpio.Output, clk clock.Clock, cfg Config) *Driver {
	if cfg.Granule <= 0 {
		cfg.Granule = DefaultConfig().Granule
	}
	return &Driver{line: line, clock: clk, cfg: cfg}
}

// Start asserts the motor-enable line.
func (d *Driver) Start() error {
	if err := d.line.SetValue(gpio.High); err != nil {
		return fmt.Errorf("motor start: %w", err)
	}
	d.running.Store(true)
	return nil
}

// Stop deasserts the motor-enable line.
func (d *Driver) Stop() error {
	if err := d.line.SetValue(gpio.Low); err != nil {
		return fmt.Errorf("motor stop: %w", err)
	}
	d.running.Store(false)
	return nil
}

// Running reports the last successfully commanded state.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Dispense runs the motor for duration, consumed in Granule steps, then
// stops it. The stop is attempted even if the start failed.
func (d *Driver) Dispense(duration time.Duration) error {
	errStart := d.Start()
	for remaining := duration; remaining > 0; remaining -= d.cfg.Granule {
		d.clock.Sleep(d.cfg.Granule)
	}
	return errors.Join(errStart, d.Stop())
}

// WakeupPulse twitches the motor Pulses times so a person can see the
// controller booted. The motor is off when it returns.
func (d *Driver) WakeupPulse() error {
	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	record(d.Start())
	for i := 0; i < d.cfg.Pulses; i++ {
		record(d.Start())
		d.clock.Sleep(d.cfg.PulseOn)
		record(d.Stop())
		d.clock.Sleep(d.cfg.PulseOff)
	}
	record(d.Stop())
	return errors.Join(errs...)
}
