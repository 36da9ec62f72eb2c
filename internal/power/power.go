// Package power switches the auxiliary rail feeding the dial and motor driver.
package power

import (
	"fmt"
	"sync/atomic"

	"github.com/sweeney/feeder/internal/gpio"
)

// Gate controls the power-gate enable line.
type Gate struct {
	line gpio.Output
	on   atomic.Bool
}

// New creates a Gate. The rail is assumed off until On is called.
func New(line gpio.Output) *Gate {
	return &Gate{line: line}
}

// On powers the rail.
func (g *Gate) On() error {
	if err := g.line.SetValue(gpio.High); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	g.on.Store(true)
	return nil
}

// Off cuts the rail.
func (g *Gate) Off() error {
	if err := g.line.SetValue(gpio.Low); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	g.on.Store(false)
	return nil
}

// IsOn reports the last successfully commanded state.
func (g *Gate) IsOn() bool {
	return g.on.Load()
}
