// ABOUTME: Malgo-based audio output implementation with device selection
// ABOUTME: Uses miniaudio via malgo; the data callback pulls samples straight from the renderer
package output

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/remrama/smacc-go/pkg/audio"
)

// Malgo output backend using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a new Malgo backend
func NewMalgo() Backend {
	return &Malgo{}
}

// Name returns the backend name
func (m *Malgo) Name() string { return "malgo" }

// context returns the malgo context, creating it on first use
func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx, nil
}

// Devices lists playback devices by name
func (m *Malgo) Devices() ([]Device, error) {
	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for i := range infos {
		devices = append(devices, Device{
			ID:      infos[i].Name(),
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault != 0,
		})
	}
	return devices, nil
}

// Open initializes a playback device; it is started by Stream.Start
func (m *Malgo) Open(cfg StreamConfig) (Stream, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}

	ctx, err := m.context()
	if err != nil {
		return nil, unavailable(cfg.DeviceID, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1

	if !isDefaultDevice(cfg.DeviceID) {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, unavailable(cfg.DeviceID, err)
		}
		names := make([]string, len(infos))
		for i := range infos {
			names[i] = infos[i].Name()
		}
		idx := matchDevice(cfg.DeviceID, names)
		if idx < 0 {
			return nil, unavailable(cfg.DeviceID, nil)
		}
		deviceConfig.Playback.DeviceID = infos[idx].ID.Pointer()
	}

	s := &malgoStream{
		cfg:     cfg,
		samples: make([]float32, cfg.FramesPerBuffer*cfg.Format.Channels),
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: s.dataCallback,
		Stop: s.stopCallback,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return nil, unavailable(cfg.DeviceID, fmt.Errorf("failed to initialize playback device: %w", err))
	}
	s.device = device

	log.Printf("[output] malgo device %q initialized: %s (%s)",
		cfg.DeviceID, cfg.Format, formatName(deviceConfig.Playback.Format))
	return s, nil
}

// Close releases the malgo context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("[output] Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

type malgoStream struct {
	cfg     StreamConfig
	device  *malgo.Device
	samples []float32 // pre-allocated; only touched by the device thread

	// stopping is set before a requested stop so the stop callback can
	// tell it apart from the device dying underneath us
	stopping atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
}

// dataCallback is called by malgo to fill the audio output buffer
func (s *malgoStream) dataCallback(pOutput, pInput []byte, frameCount uint32) {
	n := int(frameCount) * s.cfg.Format.Channels
	if len(s.samples) < n {
		s.samples = make([]float32, n)
	}
	samples := s.samples[:n]
	s.cfg.Render(samples)
	audio.PutFloat32LE(pOutput, samples)
}

// stopCallback is called by malgo whenever the device stops
func (s *malgoStream) stopCallback() {
	if s.stopping.Load() {
		return
	}
	s.cfg.OnError(fmt.Errorf("%w: device %q stopped unexpectedly", ErrStreamFault, s.cfg.DeviceID))
}

// Start starts the device
func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.started {
		return nil
	}

	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	s.started = true
	return nil
}

// Stop stops the device; miniaudio returns once the device has stopped
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.stopping.Store(true)
	s.started = false
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// Close stops and uninitializes the device
func (s *malgoStream) Close() error {
	stopErr := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return stopErr
	}
	s.closed = true
	s.device.Uninit()
	return stopErr
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	case malgo.FormatF32:
		return "F32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
