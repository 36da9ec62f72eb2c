package gpio

import (
	"errors"
	"sync"
	"time"
)

// Write is one recorded SetValue call.
type Write struct {
	Value int
	At    time.Time
}

// FakeLine is a test double usable as both Input and Output.
// It records every write with a timestamp and replays scripted reads.
type FakeLine struct {
	mu     sync.Mutex
	now    func() time.Time
	level  int
	writes []Write
	script []int
	index  int
	reads  int

	// ReadError, if set, is returned by Value.
	ReadError error
	// WriteError, if set, is returned by SetValue. The level is unchanged.
	WriteError error
}

// NewFakeLine creates a FakeLine timestamping writes with now.
// A nil now records zero timestamps.
func NewFakeLine(now func() time.Time) *FakeLine {
	if now == nil {
		now = func() time.Time { return time.Time{} }
	}
	return &FakeLine{now: now}
}

// SetValue records the write and updates the level.
func (f *FakeLine) SetValue(value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.level = value
	f.writes = append(f.writes, Write{Value: value, At: f.now()})
	return nil
}

// Value returns the next scripted value, repeating the last one once the
// script is exhausted. Without a script it returns the current level.
func (f *FakeLine) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.script) == 0 {
		return f.level, nil
	}
	v := f.script[f.index]
	if f.index < len(f.script)-1 {
		f.index++
	}
	return v, nil
}

// Script sets the values returned by successive reads.
func (f *FakeLine) Script(values ...int) {
	f.mu.Lock()
	f.script = values
	f.index = 0
	f.mu.Unlock()
}

// Set changes the level without recording a write, as an external
// driver of an input would.
func (f *FakeLine) Set(value int) {
	f.mu.Lock()
	f.level = value
	f.mu.Unlock()
}

// Level returns the current level.
func (f *FakeLine) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Writes returns a copy of every recorded write.
func (f *FakeLine) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// Reads returns how many times Value was called.
func (f *FakeLine) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Reset clears recorded writes, reads and script.
func (f *FakeLine) Reset() {
	f.mu.Lock()
	f.writes = nil
	f.script = nil
	f.index = 0
	f.reads = 0
	f.mu.Unlock()
}

// FakeBoard holds a FakeLine for every controller line.
type FakeBoard struct {
	Motor    *FakeLine
	Power    *FakeLine
	Serial   *FakeLine
	Override *FakeLine
	Dial     [4]*FakeLine

	Closed bool
}

// NewFakeBoard creates a board whose lines timestamp writes with now.
func NewFakeBoard(now func() time.Time) *FakeBoard {
	b := &FakeBoard{
		Motor:    NewFakeLine(now),
		Power:    NewFakeLine(now),
		Serial:   NewFakeLine(now),
		Override: NewFakeLine(now),
	}
	for i := range b.Dial {
		b.Dial[i] = NewFakeLine(now)
	}
	return b
}

// Lines exposes the board through the same type Open returns.
func (b *FakeBoard) Lines() *Lines {
	l := &Lines{
		Motor:    b.Motor,
		Power:    b.Power,
		Serial:   b.Serial,
		Override: b.Override,
		closer: func() error {
			if b.Closed {
				return errors.New("already closed")
			}
			b.Closed = true
			return nil
		},
	}
	for i, d := range b.Dial {
		l.Dial[i] = d
	}
	return l
}

// SetDial drives the four dial inputs to represent speed (0-15).
func (b *FakeBoard) SetDial(speed uint8) {
	for i, d := range b.Dial {
		d.Set(int(speed>>(3-i)) & 1)
	}
}
