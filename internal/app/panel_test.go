// ABOUTME: Tests for noise panel orchestration
// ABOUTME: Tests key command handling and the run/shutdown lifecycle
package app

import (
	"context"
	"testing"
	"time"

	"github.com/remrama/smacc-go/internal/config"
	"github.com/remrama/smacc-go/internal/ui"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
)

func newTestPanel(t *testing.T, devices ...string) (*Panel, *output.Headless) {
	t.Helper()

	h := output.NewHeadless(devices...)
	h.Interval = time.Millisecond

	cfg := config.Default()
	cfg.Backend = "headless"
	cfg.SampleRate = 8000
	cfg.FramesPerBuffer = 80
	cfg.Port = 0
	cfg.MDNS = false

	p, err := New(Config{Config: cfg}, h)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { p.Engine().Stop() })
	return p, h
}

func TestNewPanel(t *testing.T) {
	p, _ := newTestPanel(t)

	if p.server != nil {
		t.Error("port 0 should disable the control server")
	}
	if p.tui != nil {
		t.Error("TUI should be disabled")
	}
	st := p.Engine().Status()
	if st.Volume != 0.5 || st.Color != noise.White {
		t.Errorf("config not applied to engine: %+v", st)
	}
}

func TestToggleCommand(t *testing.T) {
	p, h := newTestPanel(t)

	if err := p.HandleCommand(ui.Command{Kind: ui.CmdToggle}); err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if !p.Engine().Running() {
		t.Fatal("expected engine running")
	}

	if err := p.HandleCommand(ui.Command{Kind: ui.CmdToggle}); err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if p.Engine().Running() {
		t.Error("expected engine stopped")
	}
	if h.Live() != 0 {
		t.Errorf("expected stream released, live=%d", h.Live())
	}
}

func TestColorCommands(t *testing.T) {
	p, _ := newTestPanel(t)

	want := []noise.Color{noise.Pink, noise.Brown, noise.Blue, noise.Violet, noise.White}
	for _, c := range want {
		if err := p.HandleCommand(ui.Command{Kind: ui.CmdNextColor}); err != nil {
			t.Fatalf("next color failed: %v", err)
		}
		if p.Engine().Color() != c {
			t.Fatalf("expected %s, got %s", c, p.Engine().Color())
		}
	}

	p.HandleCommand(ui.Command{Kind: ui.CmdPrevColor})
	if p.Engine().Color() != noise.Violet {
		t.Errorf("expected previous color violet, got %s", p.Engine().Color())
	}
}

func TestVolumeCommandClamps(t *testing.T) {
	p, _ := newTestPanel(t)

	p.HandleCommand(ui.Command{Kind: ui.CmdVolume, Delta: 0.05})
	if v := p.Engine().Volume(); v != 0.55 {
		t.Errorf("expected 0.55, got %v", v)
	}

	for i := 0; i < 20; i++ {
		if err := p.HandleCommand(ui.Command{Kind: ui.CmdVolume, Delta: 0.05}); err != nil {
			t.Fatalf("volume up failed: %v", err)
		}
	}
	if v := p.Engine().Volume(); v != 1 {
		t.Errorf("expected volume clamped to 1, got %v", v)
	}

	for i := 0; i < 30; i++ {
		if err := p.HandleCommand(ui.Command{Kind: ui.CmdVolume, Delta: -0.05}); err != nil {
			t.Fatalf("volume down failed: %v", err)
		}
	}
	if v := p.Engine().Volume(); v != 0 {
		t.Errorf("expected volume clamped to 0, got %v", v)
	}
}

func TestDeviceCommandCycles(t *testing.T) {
	p, _ := newTestPanel(t, "USB Speakers", "HDMI")

	want := []string{"USB Speakers", "HDMI", output.DefaultDevice}
	for _, d := range want {
		if err := p.HandleCommand(ui.Command{Kind: ui.CmdNextDevice}); err != nil {
			t.Fatalf("next device failed: %v", err)
		}
		if got := p.Engine().Status().Device; got != d {
			t.Fatalf("expected %s, got %s", d, got)
		}
	}
}

func TestDeviceCommandSingleDevice(t *testing.T) {
	p, _ := newTestPanel(t)

	if err := p.HandleCommand(ui.Command{Kind: ui.CmdNextDevice}); err != nil {
		t.Fatalf("next device failed: %v", err)
	}
	if got := p.Engine().Status().Device; got != output.DefaultDevice {
		t.Errorf("expected default device kept, got %s", got)
	}
}

func TestStepColorWraps(t *testing.T) {
	colors := noise.Colors()
	if got := stepColor(colors[0], -1); got != colors[len(colors)-1] {
		t.Errorf("expected wrap to %s, got %s", colors[len(colors)-1], got)
	}
	if got := stepColor(colors[len(colors)-1], 1); got != colors[0] {
		t.Errorf("expected wrap to %s, got %s", colors[0], got)
	}
}

func TestRunStopsNoiseOnShutdown(t *testing.T) {
	p, h := newTestPanel(t)
	p.config.Autoplay = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !p.Engine().Running() {
		if time.Now().After(deadline) {
			t.Fatal("autoplay did not start noise")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if p.Engine().Running() {
		t.Error("noise still running after shutdown")
	}
	if h.Live() != 0 {
		t.Errorf("expected stream released, live=%d", h.Live())
	}
}
