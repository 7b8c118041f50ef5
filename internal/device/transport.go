package device

import (
	"time"

	"go.bug.st/serial"
)

// Port abstracts the subset of go.bug.st/serial.Port used by this package.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(d time.Duration) error
}

// allow tests to override the hardware
var openPort = func(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}
