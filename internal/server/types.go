// Package server defines shared payload types and utility helpers that are
// reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

// Controller receives drive commands from WebSocket clients. The bridge
// implements it on top of the serial device.
type Controller interface {
	// HandleCommand forwards cmd to the device and reports whether it was
	// written.
	HandleCommand(cmd protocol.Command) bool
	// DeviceConnected reports whether the serial device is currently open.
	DeviceConnected() bool
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
