package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseCommand verifies that only the five drive characters are accepted
// and that lower case input is normalized.
func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
		ok   bool
	}{
		{"W", Forward, true},
		{"w", Forward, true},
		{"a", Left, true},
		{"S", Backward, true},
		{"d", Right, true},
		{"x", Stop, true},
		{"", 0, false},
		{"Q", 0, false},
		{"WW", 0, false},
		{" w", 0, false},
		{"stop", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandDirection(t *testing.T) {
	assert.Equal(t, "FORWARD", Forward.Direction())
	assert.Equal(t, "BACKWARD", Backward.Direction())
	assert.Equal(t, "LEFT", Left.Direction())
	assert.Equal(t, "RIGHT", Right.Direction())
	assert.Equal(t, "STOP", Stop.Direction())
	assert.Equal(t, "UNKNOWN", Command('Q').Direction())
}

// TestOutboundShapes pins the JSON field names browsers depend on.
func TestOutboundShapes(t *testing.T) {
	payload, err := NewSensorData("dist:42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sensorData","data":"dist:42"}`, string(payload))

	payload, err = NewCommandResult(Right, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"commandResult","success":true,"command":"D"}`, string(payload))

	payload, err = NewCommandResult(Stop, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"commandResult","success":false,"command":"X"}`, string(payload))

	payload, err = NewConnected(false)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, TypeConnected, env.Type)
	assert.False(t, env.DeviceConnected)
	assert.NotEmpty(t, env.Message)

	payload, err = NewStatus("device disconnected")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","message":"device disconnected"}`, string(payload))
}

// TestConnectedGreetingShape pins the greeting keys, including the legacy
// arduinoConnected flag read by browser clients written for the old bridge.
func TestConnectedGreetingShape(t *testing.T) {
	payload, err := NewConnected(true)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"connected","message":"Connected to robot bridge","deviceConnected":true,"arduinoConnected":true}`,
		string(payload))

	payload, err = NewConnected(false)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, false, raw["arduinoConnected"])
	assert.Equal(t, false, raw["deviceConnected"])
}

func TestNewCommand(t *testing.T) {
	payload, err := NewCommand(Backward)
	require.NoError(t, err)

	var in Inbound
	require.NoError(t, json.Unmarshal(payload, &in))
	assert.Equal(t, TypeCommand, in.Type)
	assert.Equal(t, "S", in.Command)
}
