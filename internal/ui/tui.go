// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the noise panel and bridges it to the app
package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind identifies a panel key action
type CommandKind int

const (
	CmdToggle CommandKind = iota
	CmdNextColor
	CmdPrevColor
	CmdVolume
	CmdNextDevice
)

// Command is a control request raised by a key press
type Command struct {
	Kind  CommandKind
	Delta float64 // volume change for CmdVolume
}

// Controls holds channels from the TUI to the app
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates the TUI control channels
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// Panel runs the TUI and accepts updates from other goroutines without
// blocking them
type Panel struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
}

// NewPanel creates the panel TUI
func NewPanel(name string, controls *Controls) *Panel {
	return &Panel{
		program: tea.NewProgram(NewModel(name, controls), tea.WithAltScreen()),
		updates: make(chan tea.Msg, 64),
		done:    make(chan struct{}),
	}
}

// Run shows the TUI until the user quits or Stop is called
func (p *Panel) Run() error {
	go func() {
		for {
			select {
			case msg := <-p.updates:
				p.program.Send(msg)
			case <-p.done:
				return
			}
		}
	}()

	_, err := p.program.Run()
	return err
}

// Send queues a message for the TUI, dropping it if the TUI is behind
func (p *Panel) Send(msg tea.Msg) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.updates <- msg:
	default:
	}
}

// Stop quits the TUI
func (p *Panel) Stop() {
	select {
	case <-p.done:
		return
	default:
		close(p.done)
	}
	p.program.Quit()
}

// Write implements io.Writer so the log package can feed the TUI log pane
func (p *Panel) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			p.Send(LogMsg(line))
		}
	}
	return len(b), nil
}
