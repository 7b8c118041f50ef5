package device

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	listDetailed = enumerator.GetDetailedPortsList
	listNames    = serial.GetPortsList
)

// arduinoVIDs are the USB vendor IDs used by Arduino boards.
var arduinoVIDs = map[string]struct{}{
	"2341": {},
	"2A03": {},
}

// PortInfo describes one enumerated serial port. Only Name is guaranteed;
// the USB fields are empty when the platform does not report them.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Match records why SelectPort chose a port.
type Match int

const (
	// MatchConfigured means the port was named in the configuration.
	MatchConfigured Match = iota
	// MatchDetected means the port looked like a microcontroller.
	MatchDetected
	// MatchFallback means nothing looked right and the first port was used.
	MatchFallback
)

func (m Match) String() string {
	switch m {
	case MatchConfigured:
		return "configured"
	case MatchDetected:
		return "auto-detected"
	case MatchFallback:
		return "first available"
	default:
		return "unknown"
	}
}

// ListPorts enumerates serial ports with USB details where the platform
// supports it, falling back to bare device names.
func ListPorts() ([]PortInfo, error) {
	details, err := listDetailed()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          strings.ToUpper(d.VID),
				PID:          strings.ToUpper(d.PID),
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return ports, nil
	}

	names, nameErr := listNames()
	if nameErr != nil {
		return nil, fmt.Errorf("list serial ports: %w", nameErr)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}

// LooksLikeMicrocontroller reports whether a port is probably an Arduino or
// a USB serial adapter.
func (p PortInfo) LooksLikeMicrocontroller() bool {
	if strings.Contains(strings.ToLower(p.Product), "arduino") {
		return true
	}
	if _, ok := arduinoVIDs[strings.ToUpper(p.VID)]; ok {
		return true
	}
	return strings.Contains(p.Name, "usbmodem") || strings.Contains(p.Name, "usbserial")
}

// SelectPort picks the port to open. A preferred path always wins, even when
// enumeration did not report it. Otherwise the first port that looks like a
// microcontroller is used, then the first port.
func SelectPort(ports []PortInfo, preferred string) (PortInfo, Match, error) {
	if preferred != "" {
		for _, p := range ports {
			if p.Name == preferred {
				return p, MatchConfigured, nil
			}
		}
		return PortInfo{Name: preferred}, MatchConfigured, nil
	}

	if len(ports) == 0 {
		return PortInfo{}, MatchFallback, ErrNoPorts
	}

	for _, p := range ports {
		if p.LooksLikeMicrocontroller() {
			return p, MatchDetected, nil
		}
	}
	return ports[0], MatchFallback, nil
}
