//go:build !linux

package gpio

import "errors"

// Open is not available on non-Linux platforms.
func Open(p Pins, onOverride func()) (*Lines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
