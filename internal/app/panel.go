// ABOUTME: Noise panel application orchestration
// ABOUTME: Coordinates the engine, terminal panel, control server and mDNS advertisement
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/remrama/smacc-go/internal/config"
	"github.com/remrama/smacc-go/internal/control"
	"github.com/remrama/smacc-go/internal/discovery"
	"github.com/remrama/smacc-go/internal/ui"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
	"github.com/remrama/smacc-go/pkg/playback"
)

const statusInterval = 500 * time.Millisecond

// Config holds panel configuration
type Config struct {
	config.Config

	// UseTUI shows the terminal panel; otherwise logs stream to stdout
	UseTUI bool
}

// Panel is the noise panel application
type Panel struct {
	config   Config
	engine   *playback.Engine
	server   *control.Server
	tui      *ui.Panel
	controls *ui.Controls
}

// New creates the panel around a backend
func New(cfg Config, backend output.Backend) (*Panel, error) {
	volume := cfg.Volume
	engine, err := playback.New(playback.Config{
		Backend:         backend,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Color:           cfg.Color,
		Volume:          &volume,
		Device:          cfg.Device,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	p := &Panel{
		config:   cfg,
		engine:   engine,
		controls: ui.NewControls(),
	}
	if cfg.Port > 0 {
		p.server = control.New(control.Config{Port: cfg.Port, Name: cfg.Name}, engine)
	}
	if cfg.UseTUI {
		p.tui = ui.NewPanel(cfg.Name, p.controls)
	}
	return p, nil
}

// Engine returns the playback engine
func (p *Panel) Engine() *playback.Engine {
	return p.engine
}

// LogWriter returns a writer feeding the TUI log pane, or io.Discard
// without a TUI
func (p *Panel) LogWriter() io.Writer {
	if p.tui == nil {
		return io.Discard
	}
	return p.tui
}

// Run starts every component and blocks until ctx is cancelled or the
// user quits. Noise is stopped before Run returns.
func (p *Panel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	if p.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.server.ListenAndServe(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	if p.server != nil && p.config.MDNS {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: p.config.Name,
			Port:        p.config.Port,
		})
		if err := mdns.Advertise(); err != nil {
			log.Printf("[app] Failed to start mDNS advertisement: %v", err)
		} else {
			defer mdns.Stop()
		}
	}

	if p.tui != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.tui.Run(); err != nil {
				log.Printf("[app] TUI error: %v", err)
			}
			cancel()
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.commandLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.statusLoop(ctx)
	}()

	log.Printf("[app] Noise panel %s ready (backend: %s, device: %s)",
		p.config.Name, p.engine.Backend().Name(), p.engine.Status().Device)

	if p.config.Autoplay {
		if err := p.engine.Start(p.engine.Color(), ""); err != nil {
			log.Printf("[app] Autoplay failed: %v", err)
			p.showError(err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-p.controls.Quit:
		log.Printf("[app] Received quit signal from TUI")
	case runErr = <-serverErr:
	}

	cancel()
	if err := p.engine.Stop(); err != nil {
		log.Printf("[app] Error stopping noise: %v", err)
	}
	if p.tui != nil {
		p.tui.Stop()
	}
	wg.Wait()

	log.Printf("[app] Noise panel stopped")
	return runErr
}

// commandLoop applies TUI key commands
func (p *Panel) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.controls.Commands:
			if err := p.HandleCommand(cmd); err != nil {
				log.Printf("[app] Command failed: %v", err)
				p.showError(err)
			}
		}
	}
}

// HandleCommand applies one panel command to the engine
func (p *Panel) HandleCommand(cmd ui.Command) error {
	switch cmd.Kind {
	case ui.CmdToggle:
		if p.engine.Running() {
			return p.engine.Stop()
		}
		return p.engine.Start(p.engine.Color(), "")

	case ui.CmdNextColor:
		return p.engine.SetColor(stepColor(p.engine.Color(), 1))

	case ui.CmdPrevColor:
		return p.engine.SetColor(stepColor(p.engine.Color(), -1))

	case ui.CmdVolume:
		v := p.engine.Volume() + cmd.Delta
		// Snap to the step grid and keep inside [0, 1]
		v = float64(int(v*100+0.5)) / 100
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return p.engine.SetVolume(v)

	case ui.CmdNextDevice:
		devices, err := p.engine.Devices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		next, ok := nextDevice(devices, p.engine.Status().Device)
		if !ok {
			return nil
		}
		return p.engine.SetDevice(next)
	}
	return fmt.Errorf("unknown command %d", cmd.Kind)
}

// statusLoop pushes engine status to the TUI on every event and
// periodically for the block counters
func (p *Panel) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	events := p.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case playback.StreamFault:
				p.showError(ev.Err)
			case playback.CallbackFault:
				log.Printf("[app] Render glitch on session %s: %v", ev.Session, ev.Err)
			}
			p.pushStatus(ev.Status)
		case <-ticker.C:
			p.pushStatus(p.engine.Status())
		}
	}
}

func (p *Panel) pushStatus(st playback.Status) {
	if p.tui == nil {
		return
	}
	clients := -1
	if p.server != nil {
		clients = p.server.ClientCount()
	}
	p.tui.Send(ui.StatusMsg{Status: st, Clients: clients})
}

func (p *Panel) showError(err error) {
	if p.tui != nil && err != nil {
		p.tui.Send(ui.ErrorMsg(err.Error()))
	}
}

// stepColor moves through the color list in display order
func stepColor(c noise.Color, step int) noise.Color {
	colors := noise.Colors()
	idx := 0
	for i, col := range colors {
		if col == c {
			idx = i
			break
		}
	}
	n := len(colors)
	return colors[((idx+step)%n+n)%n]
}

// nextDevice returns the device after current in devices, wrapping around
func nextDevice(devices []output.Device, current string) (string, bool) {
	if len(devices) < 2 {
		return "", false
	}
	for i, d := range devices {
		if d.ID == current || d.Name == current || (d.Default && current == output.DefaultDevice) {
			return devices[(i+1)%len(devices)].ID, true
		}
	}
	return devices[0].ID, true
}
