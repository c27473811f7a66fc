// ABOUTME: Headless software output device
// ABOUTME: Pulls Render on a paced goroutine for tests and machines without audio hardware
package output

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Headless is a software output backend. Each started stream runs a pump
// goroutine that calls Render at the pace a real device would and passes
// a copy of every buffer to Sink.
type Headless struct {
	// Interval between render calls. Zero derives it from the buffer
	// size and sample rate.
	Interval time.Duration

	// Sink receives a copy of every rendered buffer; may be nil
	Sink func(deviceID string, samples []float32)

	mu      sync.Mutex
	devices []Device
	streams map[*headlessStream]struct{}
	opens   int
}

// NewHeadless creates a headless backend with a default device plus the
// named extra devices
func NewHeadless(deviceIDs ...string) *Headless {
	h := &Headless{
		devices: []Device{{ID: DefaultDevice, Name: "Headless default", Default: true, MaxChannels: 2}},
		streams: make(map[*headlessStream]struct{}),
	}
	for _, id := range deviceIDs {
		h.devices = append(h.devices, Device{ID: id, Name: id, MaxChannels: 2})
	}
	return h
}

// Name returns the backend name
func (h *Headless) Name() string { return "headless" }

// Devices lists the plugged-in devices
func (h *Headless) Devices() ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	devices := make([]Device, len(h.devices))
	copy(devices, h.devices)
	return devices, nil
}

// Open opens a stream on a plugged-in device
func (h *Headless) Open(cfg StreamConfig) (Stream, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := cfg.DeviceID
	if isDefaultDevice(id) {
		id = DefaultDevice
	}
	names := make([]string, len(h.devices))
	for i, d := range h.devices {
		names[i] = d.ID
	}
	idx := matchDevice(id, names)
	if idx < 0 {
		return nil, unavailable(cfg.DeviceID, nil)
	}

	interval := h.Interval
	if interval <= 0 {
		interval = time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.Format.SampleRate)
	}

	s := &headlessStream{
		backend:  h,
		cfg:      cfg,
		device:   h.devices[idx].ID,
		interval: interval,
		buf:      make([]float32, cfg.FramesPerBuffer*cfg.Format.Channels),
	}
	h.streams[s] = struct{}{}
	h.opens++
	return s, nil
}

// Live returns the number of opened streams that have not been closed
func (h *Headless) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// Opens returns how many streams have ever been opened
func (h *Headless) Opens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

// Fault reports err as a stream fault on every running stream
func (h *Headless) Fault(err error) {
	for _, s := range h.running("") {
		s.fail(err)
	}
}

// Unplug removes a device; its running streams die with a stream fault
func (h *Headless) Unplug(deviceID string) {
	h.mu.Lock()
	for i, d := range h.devices {
		if d.ID == deviceID {
			h.devices = append(h.devices[:i], h.devices[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	for _, s := range h.running(deviceID) {
		s.fail(fmt.Errorf("device %q removed", deviceID))
	}
}

// Plug adds a device
func (h *Headless) Plug(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = append(h.devices, Device{ID: deviceID, Name: deviceID, MaxChannels: 2})
}

// running returns started streams, optionally filtered by device
func (h *Headless) running(deviceID string) []*headlessStream {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*headlessStream
	for s := range h.streams {
		if deviceID != "" && s.device != deviceID {
			continue
		}
		if s.isStarted() {
			out = append(out, s)
		}
	}
	return out
}

type headlessStream struct {
	backend  *Headless
	cfg      StreamConfig
	device   string
	interval time.Duration
	buf      []float32 // only touched by the pump goroutine

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (s *headlessStream) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start launches the pump goroutine
func (s *headlessStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.started {
		return nil
	}
	s.started = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.pump(s.stop)
	return nil
}

// pump calls Render once per interval until stopped
func (s *headlessStream) pump(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.cfg.Render(s.buf)
			if sink := s.backend.Sink; sink != nil {
				out := make([]float32, len(s.buf))
				copy(out, s.buf)
				sink(s.device, out)
			}
		}
	}
}

// Stop halts the pump and waits for the in-flight buffer to finish
func (s *headlessStream) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Close stops the stream and releases the device handle
func (s *headlessStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.backend.mu.Lock()
		delete(s.backend.streams, s)
		s.backend.mu.Unlock()
	}
	return nil
}

// fail kills the pump and reports a stream fault
func (s *headlessStream) fail(err error) {
	_ = s.Stop()
	s.cfg.OnError(fmt.Errorf("%w: %v", ErrStreamFault, err))
}
