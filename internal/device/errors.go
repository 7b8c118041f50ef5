package device

import "errors"

var (
	// ErrNoPorts is returned when enumeration finds no serial ports at all.
	ErrNoPorts = errors.New("device: no serial ports found")
	// ErrNotOpen is returned when writing to a device that is closed or was lost.
	ErrNotOpen = errors.New("device: port not open")
)
