// Package protocol defines the JSON messages exchanged with WebSocket clients
// and the single-character drive commands understood by the microcontroller.
package protocol

import (
	"encoding/json"
	"strings"
)

// Message types sent and received over the WebSocket.
const (
	TypeCommand       = "command"
	TypeConnected     = "connected"
	TypeSensorData    = "sensorData"
	TypeCommandResult = "commandResult"
	TypeStatus        = "status"
)

// Command is a single drive character written verbatim to the serial device.
type Command byte

// The five commands the firmware understands.
const (
	Forward  Command = 'W'
	Left     Command = 'A'
	Backward Command = 'S'
	Right    Command = 'D'
	Stop     Command = 'X'
)

// Commands lists every valid command.
var Commands = []Command{Forward, Left, Backward, Right, Stop}

// ParseCommand upper-cases s and returns the matching command. Anything other
// than exactly one of W, A, S, D or X is rejected.
func ParseCommand(s string) (Command, bool) {
	s = strings.ToUpper(s)
	if len(s) != 1 {
		return 0, false
	}
	switch c := Command(s[0]); c {
	case Forward, Left, Backward, Right, Stop:
		return c, true
	default:
		return 0, false
	}
}

// String returns the command character.
func (c Command) String() string {
	return string(rune(c))
}

// Direction returns a human readable label for logs and UIs.
func (c Command) Direction() string {
	switch c {
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Stop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Inbound is a message received from a WebSocket client.
type Inbound struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
}

// Connected greets a freshly connected client. ArduinoConnected mirrors
// DeviceConnected under the key older browser clients read.
type Connected struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	DeviceConnected  bool   `json:"deviceConnected"`
	ArduinoConnected bool   `json:"arduinoConnected"`
}

// SensorData carries one line read from the serial device.
type SensorData struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// CommandResult reports whether a command reached the device.
type CommandResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Command string `json:"command"`
}

// Status is a free-form lifecycle notice broadcast to every client.
type Status struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Envelope is used by clients to decode any outbound message before
// switching on Type.
type Envelope struct {
	Type            string `json:"type"`
	Message         string `json:"message,omitempty"`
	Data            string `json:"data,omitempty"`
	Command         string `json:"command,omitempty"`
	Success         bool   `json:"success,omitempty"`
	DeviceConnected bool   `json:"deviceConnected,omitempty"`

	ArduinoConnected bool `json:"arduinoConnected,omitempty"`
}

// NewConnected encodes a connected greeting.
func NewConnected(deviceConnected bool) ([]byte, error) {
	return json.Marshal(Connected{
		Type:             TypeConnected,
		Message:          "Connected to robot bridge",
		DeviceConnected:  deviceConnected,
		ArduinoConnected: deviceConnected,
	})
}

// NewSensorData encodes a sensor line.
func NewSensorData(line string) ([]byte, error) {
	return json.Marshal(SensorData{Type: TypeSensorData, Data: line})
}

// NewCommandResult encodes the outcome of a command.
func NewCommandResult(cmd Command, success bool) ([]byte, error) {
	return json.Marshal(CommandResult{Type: TypeCommandResult, Success: success, Command: cmd.String()})
}

// NewStatus encodes a status notice.
func NewStatus(message string) ([]byte, error) {
	return json.Marshal(Status{Type: TypeStatus, Message: message})
}

// NewCommand encodes a command request as a client would send it.
func NewCommand(cmd Command) ([]byte, error) {
	return json.Marshal(Inbound{Type: TypeCommand, Command: cmd.String()})
}
