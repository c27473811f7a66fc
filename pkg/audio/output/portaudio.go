//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Callback streams on named devices using PortAudio
package output

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio output backend
type PortAudio struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{}
}

// Name returns the backend name
func (p *PortAudio) Name() string { return "portaudio" }

// init initializes PortAudio once for the backend's lifetime
func (p *PortAudio) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Devices lists devices with at least one output channel
func (p *PortAudio) Devices() ([]Device, error) {
	if err := p.init(); err != nil {
		return nil, err
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var devices []Device
	for _, d := range infos {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			ID:          d.Name,
			Name:        d.Name,
			Default:     def != nil && d.Name == def.Name,
			MaxChannels: d.MaxOutputChannels,
		})
	}
	return devices, nil
}

// resolve returns the requested output device or the default one
func (p *PortAudio) resolve(id string) (*portaudio.DeviceInfo, error) {
	if isDefaultDevice(id) {
		return portaudio.DefaultOutputDevice()
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var outputs []*portaudio.DeviceInfo
	var names []string
	for _, d := range infos {
		if d.MaxOutputChannels > 0 {
			outputs = append(outputs, d)
			names = append(names, d.Name)
		}
	}
	idx := matchDevice(id, names)
	if idx < 0 {
		return nil, unavailable(id, nil)
	}
	return outputs[idx], nil
}

// Open opens a callback stream on the requested device
func (p *PortAudio) Open(cfg StreamConfig) (Stream, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.init(); err != nil {
		return nil, unavailable(cfg.DeviceID, err)
	}

	dev, err := p.resolve(cfg.DeviceID)
	if err != nil {
		return nil, unavailable(cfg.DeviceID, err)
	}
	if dev.MaxOutputChannels < cfg.Format.Channels {
		return nil, unavailable(cfg.DeviceID, fmt.Errorf("device has %d output channels, need %d",
			dev.MaxOutputChannels, cfg.Format.Channels))
	}

	s := &paStream{cfg: cfg}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Format.Channels,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(cfg.Format.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return nil, unavailable(cfg.DeviceID, fmt.Errorf("failed to open stream: %w", err))
	}
	s.stream = stream

	log.Printf("[output] portaudio stream opened on %s: %s", dev.Name, cfg.Format)
	return s, nil
}

// Close terminates PortAudio
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

type paStream struct {
	cfg    StreamConfig
	stream *portaudio.Stream

	mu      sync.Mutex
	started bool
	closed  bool
	faulted bool // touched only by the callback thread
}

// callback is invoked by PortAudio on its audio thread
func (s *paStream) callback(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	s.cfg.Render(out)
	if flags&portaudio.OutputUnderflow != 0 && !s.faulted {
		s.faulted = true
		s.cfg.OnError(fmt.Errorf("%w: output underflow on %q", ErrStreamFault, s.cfg.DeviceID))
	}
}

// Start starts the stream
func (s *paStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.started = true
	return nil
}

// Stop waits for queued buffers to play out (Pa_StopStream)
func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	return s.stream.Stop()
}

// Close releases the stream
func (s *paStream) Close() error {
	stopErr := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stopErr
	}
	s.closed = true
	return errors.Join(stopErr, s.stream.Close())
}
