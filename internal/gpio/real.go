//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "feeder"

// Open requests every controller line from the GPIO character device.
// onOverride is called from the gpiocdev event goroutine on each edge of
// the override input.
func Open(p Pins, onOverride func()) (*Lines, error) {
	chip, err := gpiocdev.NewChip(p.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	var requested []*gpiocdev.Line
	release := func() {
		for _, l := range requested {
			l.Close()
		}
		chip.Close()
	}

	output := func(name string, offset int) (*gpiocdev.Line, error) {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(Low))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
		}
		requested = append(requested, l)
		return l, nil
	}
	input := func(name string, offset int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}, opts...)
		l, err := chip.RequestLine(offset, opts...)
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
		}
		requested = append(requested, l)
		return l, nil
	}

	lines := &Lines{}

	motor, err := output("motor", p.Motor)
	if err != nil {
		release()
		return nil, err
	}
	lines.Motor = motor

	power, err := output("power", p.Power)
	if err != nil {
		release()
		return nil, err
	}
	lines.Power = power

	// Serial idles high between frames.
	serial, err := chip.RequestLine(p.Serial, gpiocdev.AsOutput(High))
	if err != nil {
		release()
		return nil, fmt.Errorf("request serial pin %d: %w", p.Serial, err)
	}
	requested = append(requested, serial)
	lines.Serial = serial

	for i, offset := range p.Dial {
		l, err := input(fmt.Sprintf("dial[%d]", i), offset)
		if err != nil {
			release()
			return nil, err
		}
		lines.Dial[i] = l
	}

	overrideOpts := []gpiocdev.LineReqOption{
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			if onOverride != nil {
				onOverride()
			}
		}),
	}
	if p.OverrideDebounce > 0 {
		overrideOpts = append(overrideOpts, gpiocdev.WithDebounce(p.OverrideDebounce))
	}
	override, err := input("override", p.Override, overrideOpts...)
	if err != nil {
		release()
		return nil, err
	}
	lines.Override = override

	lines.closer = func() error {
		return closeLines(chip, requested)
	}
	return lines, nil
}

// closeLines returns every line to input with pull-down (the Pi boot
// default) so the motor and power gate are not left driven after exit.
func closeLines(chip *gpiocdev.Chip, lines []*gpiocdev.Line) error {
	var errs []error
	for _, l := range lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if err := chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
