// Package diag carries human-readable diagnostic text.
//
// Diagnostics are fire-and-forget: no method reports failure, and nothing
// in the controller depends on the output. Which sink is used is decided at
// startup; Nop compiles the whole channel away to a method call.
package diag

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Diagnostics receives diagnostic text.
type Diagnostics interface {
	PutString(s string)
	PutUint(n uint16)
}

// Nop discards everything.
type Nop struct{}

// PutString does nothing.
func (Nop) PutString(string) {}

// PutUint does nothing.
func (Nop) PutUint(uint16) {}

// Writer sends diagnostics to an io.Writer such as a soft UART or a serial
// port. Write errors are counted and otherwise ignored.
type Writer struct {
	w      io.Writer
	errors atomic.Uint64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// PutString writes s.
func (d *Writer) PutString(s string) {
	if _, err := io.WriteString(d.w, s); err != nil {
		d.errors.Add(1)
	}
}

// PutUint writes n in decimal.
func (d *Writer) PutUint(n uint16) {
	var buf [6]byte
	if _, err := d.w.Write(strconv.AppendUint(buf[:0], uint64(n), 10)); err != nil {
		d.errors.Add(1)
	}
}

// Errors returns the number of failed writes.
func (d *Writer) Errors() uint64 {
	return d.errors.Load()
}

// Log mirrors diagnostics into the structured log at debug level, one entry
// per completed line. Blank lines are dropped.
type Log struct {
	mu     sync.Mutex
	logger logrus.FieldLogger
	line   strings.Builder
}

// NewLog creates a Log writing to logger.
func NewLog(logger logrus.FieldLogger) *Log {
	return &Log{logger: logger.WithField("source", "diag")}
}

// PutString buffers s and emits each completed line.
func (d *Log) PutString(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			d.line.WriteString(s)
			return
		}
		d.line.WriteString(s[:i])
		if text := strings.TrimSpace(d.line.String()); text != "" {
			d.logger.Debug(text)
		}
		d.line.Reset()
		s = s[i+1:]
	}
}

// PutUint buffers n in decimal.
func (d *Log) PutUint(n uint16) {
	d.PutString(strconv.FormatUint(uint64(n), 10))
}

// Multi fans out to every sink in order.
type Multi []Diagnostics

// PutString forwards s to every sink.
func (m Multi) PutString(s string) {
	for _, d := range m {
		d.PutString(s)
	}
}

// PutUint forwards n to every sink.
func (m Multi) PutUint(n uint16) {
	for _, d := range m {
		d.PutUint(n)
	}
}
