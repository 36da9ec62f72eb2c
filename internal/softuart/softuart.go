// Package softuart bit-bangs asynchronous serial output on a single GPIO line.
//
// Frames are 8N1 with a configurable number of stop bits: a low start bit,
// eight data bits least-significant first, then the line is held high for
// the stop bits. Transmission is fire-and-forget with no buffering, flow
// control or error detection.
package softuart

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sweeney/feeder/internal/clock"
	"github.com/sweeney/feeder/internal/gpio"
)

// DefaultBaud is the default line rate.
const DefaultBaud = 9600

// InterruptMask is held for the duration of each byte so bit timing is not
// stretched by interrupt handling. *irq.Controller satisfies it.
type InterruptMask interface {
	Disable()
	Enable()
}

// Config describes the line format.
type Config struct {
	Baud     int
	StopBits int
	// Mask, if set, is disabled around every byte.
	Mask InterruptMask
}

// Transmitter writes bytes to a single output line.
type Transmitter struct {
	line     gpio.Output
	clock    clock.Clock
	period   time.Duration
	stopBits int
	mask     InterruptMask

	errors atomic.Uint64
}

// New creates a Transmitter. The line is driven high (idle) immediately.
func New(line gpio.Output, clk clock.Clock, cfg Config) (*Transmitter, error) {
	if line == nil {
		return nil, errors.New("softuart: nil line")
	}
	if cfg.Baud <= 0 {
		return nil, errors.New("softuart: baud must be positive")
	}
	if cfg.StopBits < 1 {
		cfg.StopBits = 1
	}

	t := &Transmitter{
		line:     line,
		clock:    clk,
		period:   BitPeriod(cfg.Baud),
		stopBits: cfg.StopBits,
		mask:     cfg.Mask,
	}
	t.set(gpio.High)
	return t, nil
}

// BitPeriod returns the duration of one bit at baud, truncated to whole
// microseconds.
func BitPeriod(baud int) time.Duration {
	return time.Duration(1_000_000/baud) * time.Microsecond
}

// Period returns the configured bit period.
func (t *Transmitter) Period() time.Duration { return t.period }

// Errors returns the number of failed line writes since creation.
func (t *Transmitter) Errors() uint64 { return t.errors.Load() }

func (t *Transmitter) set(level int) {
	if err := t.line.SetValue(level); err != nil {
		t.errors.Add(1)
	}
}

// WriteByte transmits a single frame. It always returns nil.
func (t *Transmitter) WriteByte(c byte) error {
	if t.mask != nil {
		t.mask.Disable()
		defer t.mask.Enable()
	}

	t.set(gpio.Low)
	t.clock.Sleep(t.period)

	for mask := byte(0x01); mask != 0; mask <<= 1 {
		if c&mask != 0 {
			t.set(gpio.High)
		} else {
			t.set(gpio.Low)
		}
		t.clock.Sleep(t.period)
	}

	t.set(gpio.High)
	t.clock.Sleep(t.period * time.Duration(t.stopBits))
	return nil
}

// Write transmits p byte by byte. It never fails.
func (t *Transmitter) Write(p []byte) (int, error) {
	for _, c := range p {
		t.WriteByte(c)
	}
	return len(p), nil
}

// WriteString transmits s byte by byte.
func (t *Transmitter) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		t.WriteByte(s[i])
	}
	return len(s), nil
}

// WriteUint16 transmits n in decimal.
func (t *Transmitter) WriteUint16(n uint16) {
	var buf [6]byte
	t.Write(FormatUint16(buf[:0], n))
}

// FormatUint16 appends the decimal form of n to dst. A dst with capacity 6
// never reallocates.
func FormatUint16(dst []byte, n uint16) []byte {
	return strconv.AppendUint(dst, uint64(n), 10)
}
