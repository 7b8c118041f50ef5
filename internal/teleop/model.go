package teleop

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

const maxLogs = 6

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	keyStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	activeKey    = keyStyle.BorderForeground(lipgloss.Color("46")).Bold(true)
	sensorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

var keyCommands = map[string]protocol.Command{
	"w":     protocol.Forward,
	"up":    protocol.Forward,
	"a":     protocol.Left,
	"left":  protocol.Left,
	"s":     protocol.Backward,
	"down":  protocol.Backward,
	"d":     protocol.Right,
	"right": protocol.Right,
	"x":     protocol.Stop,
	" ":     protocol.Stop,
	"space": protocol.Stop,
}

// Sender forwards a command to the bridge.
type Sender interface {
	Send(cmd protocol.Command) error
}

type envelopeMsg protocol.Envelope

type disconnectedMsg struct{}

func waitForEnvelope(events <-chan protocol.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return envelopeMsg(env)
	}
}

// Model is the bubbletea model for the driving screen.
type Model struct {
	sender Sender
	events <-chan protocol.Envelope
	url    string

	connected       bool
	deviceConnected bool
	lastSensor      string
	lastCommand     protocol.Command
	lastResult      *bool
	logs            []string
	quitting        bool
}

// NewModel builds a model sending through sender and reading events.
func NewModel(sender Sender, events <-chan protocol.Envelope, url string) Model {
	return Model{
		sender:    sender,
		events:    events,
		url:       url,
		connected: true,
	}
}

func (m *Model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEnvelope(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := strings.ToLower(msg.String())
		switch key {
		case "q", "ctrl+c", "esc":
			if m.connected {
				_ = m.sender.Send(protocol.Stop)
			}
			m.quitting = true
			return m, tea.Quit
		}

		cmd, ok := keyCommands[key]
		if !ok {
			return m, nil
		}
		m.lastCommand = cmd
		m.lastResult = nil
		if !m.connected {
			m.addLog("not connected; " + cmd.Direction() + " dropped")
			return m, nil
		}
		if err := m.sender.Send(cmd); err != nil {
			m.addLog(fmt.Sprintf("send %s: %v", cmd, err))
		}
		return m, nil

	case envelopeMsg:
		m.handleEnvelope(protocol.Envelope(msg))
		return m, waitForEnvelope(m.events)

	case disconnectedMsg:
		m.connected = false
		m.deviceConnected = false
		m.addLog("connection to bridge closed")
		return m, nil
	}

	return m, nil
}

func (m *Model) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeConnected:
		m.deviceConnected = env.DeviceConnected || env.ArduinoConnected
		m.addLog(env.Message)
	case protocol.TypeSensorData:
		m.lastSensor = env.Data
	case protocol.TypeCommandResult:
		ok := env.Success
		m.lastResult = &ok
		if !ok {
			m.addLog("robot did not accept " + env.Command)
		}
	case protocol.TypeStatus:
		m.deviceConnected = false
		m.addLog(env.Message)
	}
}

func (m Model) View() string {
	if m.quitting {
		return "Stopped. Bye.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Robot Bridge Drive"))
	sb.WriteString(statusStyle.Render("  " + m.url))
	sb.WriteString("\n")
	sb.WriteString(m.renderConnection())
	sb.WriteString("\n\n")

	sb.WriteString(m.renderPad())
	sb.WriteString("\n\n")

	sensor := statusStyle.Render("waiting for sensor data")
	if m.lastSensor != "" {
		sensor = sensorStyle.Render(m.lastSensor)
	}
	sb.WriteString(boxStyle.Render("Sensor: " + sensor + "\n" + m.renderLastCommand()))
	sb.WriteString("\n")

	logLines := statusStyle.Render("W/A/S/D or arrows to drive, space or X to stop, q to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(boxStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderConnection() string {
	switch {
	case !m.connected:
		return failStyle.Render("● bridge disconnected")
	case !m.deviceConnected:
		return warningStyle.Render("● bridge connected, robot offline")
	default:
		return okStyle.Render("● robot online")
	}
}

func (m Model) renderKey(cmd protocol.Command) string {
	style := keyStyle
	if cmd == m.lastCommand {
		style = activeKey
	}
	return style.Render(cmd.String())
}

func (m Model) renderPad() string {
	top := lipgloss.JoinHorizontal(lipgloss.Top, "      ", m.renderKey(protocol.Forward))
	middle := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderKey(protocol.Left), m.renderKey(protocol.Stop), m.renderKey(protocol.Right))
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, "      ", m.renderKey(protocol.Backward))
	return lipgloss.JoinVertical(lipgloss.Left, top, middle, bottom)
}

func (m Model) renderLastCommand() string {
	if m.lastCommand == 0 {
		return "Last command: " + statusStyle.Render("none")
	}
	line := fmt.Sprintf("Last command: %s (%s)", m.lastCommand, m.lastCommand.Direction())
	switch {
	case m.lastResult == nil:
		return line + statusStyle.Render(" pending")
	case *m.lastResult:
		return line + okStyle.Render(" ok")
	default:
		return line + failStyle.Render(" failed")
	}
}
