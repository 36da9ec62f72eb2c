package logic

import (
	"errors"
	"math"
)

// Schedule holds the dispense interval rules, in ticks.
type Schedule struct {
	// BaseInterval is the threshold at dial speed 0.
	BaseInterval uint32
	// BlockDuration is added per unit of dial speed.
	BlockDuration uint32
	// PollInterval is how many ticks pass between evaluate cycles.
	PollInterval uint32
}

// MaxSpeed is the largest dial value.
const MaxSpeed = 15

// DefaultSchedule is one hour plus 40 minutes per dial step, evaluated every
// 10 ticks.
func DefaultSchedule() Schedule {
	return Schedule{
		BaseInterval:  3600,
		BlockDuration: 2400,
		PollInterval:  10,
	}
}

// Validate checks that the largest threshold fits the counter.
func (s Schedule) Validate() error {
	if s.PollInterval == 0 {
		return errors.New("poll interval must be at least one tick")
	}
	largest := uint64(s.BaseInterval) + uint64(s.BlockDuration)*MaxSpeed
	if largest > math.MaxUint32 {
		return errors.New("base interval plus 15 blocks overflows the tick counter")
	}
	return nil
}

// ShouldEvaluate reports whether ticks falls on an evaluate boundary.
func (s Schedule) ShouldEvaluate(ticks uint32) bool {
	if s.PollInterval <= 1 {
		return true
	}
	return ticks%s.PollInterval == 0
}

// Threshold returns the tick count at which a dispense is due for speed.
// Speeds above MaxSpeed are clamped.
func (s Schedule) Threshold(speed uint8) uint32 {
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	return s.BaseInterval + s.BlockDuration*uint32(speed)
}

// Decide computes the evaluate-cycle outcome for the given count and speed.
func (s Schedule) Decide(ticks uint32, speed uint8) Decision {
	threshold := s.Threshold(speed)
	remaining := int64(threshold) - int64(ticks)
	return Decision{
		Ticks:     ticks,
		Speed:     speed,
		Threshold: threshold,
		Remaining: remaining,
		Dispense:  remaining <= 0,
	}
}
