// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Input is a digital input line. Value returns 0 or 1.
type Input interface {
	Value() (int, error)
}

// Output is a digital output line.
type Output interface {
	SetValue(value int) error
}

// Line levels.
const (
	Low  = 0
	High = 1
)

// Default pin assignments (BCM numbering).
const (
	DefaultChip        = "gpiochip0"
	DefaultPinMotor    = 17
	DefaultPinPower    = 27
	DefaultPinSerial   = 22
	DefaultPinOverride = 23
)

// DefaultPinsDial lists the dial inputs most-significant bit first.
var DefaultPinsDial = [4]int{5, 6, 13, 19}

// Pins selects the chip and line offsets used by the controller.
type Pins struct {
	Chip     string
	Motor    int
	Power    int
	Serial   int
	Override int
	// Dial lines, most-significant bit first.
	Dial [4]int
	// OverrideDebounce is handed to the kernel line debouncer. Zero disables it.
	OverrideDebounce time.Duration
}

// DefaultPins returns the standard wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:     DefaultChip,
		Motor:    DefaultPinMotor,
		Power:    DefaultPinPower,
		Serial:   DefaultPinSerial,
		Override: DefaultPinOverride,
		Dial:     DefaultPinsDial,
	}
}

// Lines is the full set of lines the controller drives.
type Lines struct {
	Motor    Output
	Power    Output
	Serial   Output
	Override Input
	// Dial lines, most-significant bit first.
	Dial [4]Input

	closer func() error
}

// Close releases the underlying resources, if any.
func (l *Lines) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
