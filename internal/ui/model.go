// ABOUTME: Bubbletea model for the noise panel TUI
// ABOUTME: Shows engine status and log lines, turns key presses into commands
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/remrama/smacc-go/pkg/playback"
)

const (
	maxLogLines = 8
	volumeStep  = 0.05
)

// StatusMsg updates the engine status shown by the TUI
type StatusMsg struct {
	Status  playback.Status
	Clients int // connected remote panels, -1 if unknown
}

// ErrorMsg shows the most recent command failure
type ErrorMsg string

// LogMsg appends a line to the log pane
type LogMsg string

// Model represents the TUI state
type Model struct {
	name     string
	controls *Controls

	status  playback.Status
	clients int
	lastErr string
	logs    []string

	quitting bool
	width    int
	height   int
}

// NewModel creates a new TUI model
func NewModel(name string, controls *Controls) Model {
	return Model{
		name:     name,
		controls: controls,
		clients:  -1,
		status: playback.Status{
			State:  playback.Stopped,
			Volume: playback.DefaultVolume,
		},
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = msg.Status
		if msg.Clients >= 0 {
			m.clients = msg.Clients
		}
	case ErrorMsg:
		m.lastErr = string(msg)
	case LogMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case " ", "space", "p":
		m.send(Command{Kind: CmdToggle})
	case "c":
		m.send(Command{Kind: CmdNextColor})
	case "C":
		m.send(Command{Kind: CmdPrevColor})
	case "up", "+":
		m.send(Command{Kind: CmdVolume, Delta: volumeStep})
	case "down", "-":
		m.send(Command{Kind: CmdVolume, Delta: -volumeStep})
	case "d":
		m.send(Command{Kind: CmdNextDevice})
	}

	return m, nil
}

func (m Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping noise...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	playingStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	stoppedStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	faint := lipgloss.NewStyle().Faint(true)

	var b strings.Builder

	b.WriteString(titleStyle.Render("SMACC Noise - " + m.name))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-9s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-9s", "State:")))
	if m.status.State == playback.Running {
		b.WriteString(playingStyle.Render("▶ Playing"))
	} else {
		b.WriteString(stoppedStyle.Render("■ Stopped"))
	}
	b.WriteString("\n")

	row("Color:", m.status.Color.String())
	row("Volume:", fmt.Sprintf("[%s] %3.0f%%", renderBar(m.status.Volume, 20), m.status.Volume*100))
	row("Device:", fmt.Sprintf("%s (%s)", m.status.Device, m.status.Backend))
	if m.status.Session != "" {
		row("Session:", m.status.Session)
	}
	row("Blocks:", fmt.Sprintf("%d  glitches: %d", m.status.Blocks, m.status.Glitches))
	if m.clients >= 0 {
		row("Remotes:", fmt.Sprintf("%d", m.clients))
	}

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(stoppedStyle.Render("Error: "))
		b.WriteString(valueStyle.Render(truncate(m.lastErr, 70)))
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString(faint.Render(truncate(line, 90)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(faint.Render("space/p:Play/Stop  c/C:Color  ↑/↓:Volume  d:Device  q:Quit"))

	return b.String()
}

// renderBar draws a fill bar for a value in [0, 1]
func renderBar(value float64, width int) string {
	filled := int(value*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
