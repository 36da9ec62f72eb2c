// Package dial reads the 4-bit interval dial.
package dial

import (
	"fmt"

	"github.com/sweeney/feeder/internal/gpio"
)

// Max is the largest value the dial can represent.
const Max = 15

// Reader samples four input lines into a value 0-15.
type Reader struct {
	lines [4]gpio.Input
}

// New creates a Reader. lines are ordered most-significant bit first.
func New(lines [4]gpio.Input) *Reader {
	return &Reader{lines: lines}
}

// Read samples every line once and assembles the speed.
func (r *Reader) Read() (uint8, error) {
	var speed uint8
	for i, l := range r.lines {
		v, err := l.Value()
		if err != nil {
			return 0, fmt.Errorf("read dial bit %d: %w", 3-i, err)
		}
		if v != gpio.Low {
			speed |= 1 << (3 - i)
		}
	}
	return speed, nil
}
