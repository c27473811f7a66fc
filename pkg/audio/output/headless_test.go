// ABOUTME: Tests for the headless output backend
// ABOUTME: Covers pacing, device lookup, handle accounting and fault injection
package output

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remrama/smacc-go/pkg/audio"
)

func headlessConfig(device string, render RenderFunc, onError func(error)) StreamConfig {
	return StreamConfig{
		DeviceID:        device,
		Format:          audio.Format{SampleRate: 8000, Channels: 1},
		FramesPerBuffer: 64,
		Render:          render,
		OnError:         onError,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHeadlessRendersIntoSink(t *testing.T) {
	h := NewHeadless()
	h.Interval = time.Millisecond

	var mu sync.Mutex
	var buffers [][]float32
	h.Sink = func(device string, samples []float32) {
		mu.Lock()
		buffers = append(buffers, samples)
		mu.Unlock()
	}

	s, err := h.Open(headlessConfig("", func(out []float32) {
		for i := range out {
			out[i] = 0.5
		}
	}, nil))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "rendered buffers", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(buffers) >= 3
	})

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, b := range buffers {
		if len(b) != 64 {
			t.Fatalf("expected 64 samples per buffer, got %d", len(b))
		}
		if b[0] != 0.5 {
			t.Fatalf("expected rendered value 0.5, got %v", b[0])
		}
	}
}

func TestHeadlessUnknownDevice(t *testing.T) {
	h := NewHeadless("USB Speakers")

	_, err := h.Open(headlessConfig("bad-device-id", func([]float32) {}, nil))
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
	if h.Live() != 0 || h.Opens() != 0 {
		t.Errorf("failed open must not count: live=%d opens=%d", h.Live(), h.Opens())
	}

	if _, err := h.Open(headlessConfig("USB Speakers", func([]float32) {}, nil)); err != nil {
		t.Errorf("named device should open: %v", err)
	}
}

func TestHeadlessLiveAccounting(t *testing.T) {
	h := NewHeadless()

	s, err := h.Open(headlessConfig("", func([]float32) {}, nil))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if h.Live() != 1 {
		t.Errorf("expected 1 live stream, got %d", h.Live())
	}

	s.Start()
	s.Start() // idempotent

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if h.Live() != 0 {
		t.Errorf("expected 0 live streams, got %d", h.Live())
	}
	if err := s.Start(); err == nil {
		t.Error("expected error starting a closed stream")
	}
}

func TestHeadlessStopDrains(t *testing.T) {
	h := NewHeadless()
	h.Interval = time.Millisecond

	var inRender atomic.Bool
	var renders atomic.Int32
	s, _ := h.Open(headlessConfig("", func(out []float32) {
		inRender.Store(true)
		time.Sleep(2 * time.Millisecond)
		renders.Add(1)
		inRender.Store(false)
	}, nil))
	s.Start()

	waitFor(t, "first render", func() bool { return renders.Load() > 0 })

	s.Stop()
	if inRender.Load() {
		t.Error("Stop returned while a render was still in flight")
	}
	after := renders.Load()
	time.Sleep(10 * time.Millisecond)
	if renders.Load() != after {
		t.Error("render called after Stop returned")
	}
	s.Close()
}

func TestHeadlessUnplugFaults(t *testing.T) {
	h := NewHeadless("USB Speakers")
	h.Interval = time.Millisecond

	faults := make(chan error, 1)
	s, err := h.Open(headlessConfig("USB Speakers", func([]float32) {}, func(err error) {
		faults <- err
	}))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Start()

	h.Unplug("USB Speakers")

	select {
	case err := <-faults:
		if !errors.Is(err, ErrStreamFault) {
			t.Errorf("expected ErrStreamFault, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no fault reported after unplug")
	}

	devices, _ := h.Devices()
	if len(devices) != 1 {
		t.Errorf("expected only the default device left, got %v", devices)
	}

	if _, err := h.Open(headlessConfig("USB Speakers", func([]float32) {}, nil)); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable after unplug, got %v", err)
	}

	h.Plug("USB Speakers")
	if _, err := h.Open(headlessConfig("USB Speakers", func([]float32) {}, nil)); err != nil {
		t.Errorf("expected device to open after replug: %v", err)
	}
	s.Close()
}

func TestHeadlessFaultSkipsStoppedStreams(t *testing.T) {
	h := NewHeadless()

	var faults atomic.Int32
	s, _ := h.Open(headlessConfig("", func([]float32) {}, func(error) { faults.Add(1) }))

	h.Fault(errors.New("boom"))
	if faults.Load() != 0 {
		t.Error("streams that never started must not fault")
	}

	s.Start()
	h.Fault(errors.New("boom"))
	if faults.Load() != 1 {
		t.Errorf("expected 1 fault, got %d", faults.Load())
	}
	s.Close()
}
