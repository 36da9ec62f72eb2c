package diag

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens a hardware serial port (for example a USB adaptor) as a
// diagnostics transport: 8 data bits, no parity, stopBits of 1 or 2.
func OpenPort(name string, baud, stopBits int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if stopBits >= 2 {
		mode.StopBits = serial.TwoStopBits
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics port %s: %w", name, err)
	}
	return port, nil
}
