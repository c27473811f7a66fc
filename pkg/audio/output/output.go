// ABOUTME: Audio output interface definition
// ABOUTME: Common interfaces, errors and backend registry for playback devices
package output

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/remrama/smacc-go/pkg/audio"
)

// DefaultDevice selects the system default output device
const DefaultDevice = "default"

// DefaultFramesPerBuffer is used when StreamConfig.FramesPerBuffer is zero
const DefaultFramesPerBuffer = 1024

var (
	// ErrDeviceUnavailable means the requested device could not be opened
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrStreamFault means a running stream was reported dead by the device
	ErrStreamFault = errors.New("stream fault")
)

// RenderFunc fills out with the next interleaved samples in [-1, 1].
// It runs on the device's real-time thread and must not block.
type RenderFunc func(out []float32)

// StreamConfig describes a stream to open
type StreamConfig struct {
	// DeviceID is a device name, a device index, or DefaultDevice
	DeviceID string

	// Format of the stream. BitDepth is advisory; samples are float32.
	Format audio.Format

	// FramesPerBuffer is the callback size hint (default: 1024)
	FramesPerBuffer int

	// Render produces samples for the device
	Render RenderFunc

	// OnError receives faults reported by the device while running.
	// Called from a device thread; must not block.
	OnError func(error)
}

// Device describes an output device
type Device struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Default     bool   `json:"default"`
	MaxChannels int    `json:"max_channels,omitempty"`
}

// Backend opens output streams on a family of devices
type Backend interface {
	// Name returns the backend name used by New
	Name() string

	// Devices lists the output devices this backend can open
	Devices() ([]Device, error)

	// Open prepares a stream; it does not start pulling samples
	Open(cfg StreamConfig) (Stream, error)
}

// Stream represents an open output stream
type Stream interface {
	// Start begins the device pull cycle
	Start() error

	// Stop halts the pull cycle and returns once the device has drained
	Stop() error

	// Close releases the device handle
	Close() error
}

var registry = map[string]func() Backend{
	"oto":       NewOto,
	"malgo":     NewMalgo,
	"portaudio": NewPortAudio,
	"headless":  func() Backend { return NewHeadless() },
}

// New creates a backend by name
func New(name string) (Backend, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown audio backend %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names returns the registered backend names
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withDefaults validates cfg and fills in optional fields
func withDefaults(cfg StreamConfig) (StreamConfig, error) {
	if cfg.Render == nil {
		return cfg, errors.New("stream config has no render function")
	}
	if cfg.Format.BitDepth == 0 {
		cfg.Format.BitDepth = 32
	}
	if err := cfg.Format.Validate(); err != nil {
		return cfg, err
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return cfg, nil
}

// isDefaultDevice reports whether id selects the system default device
func isDefaultDevice(id string) bool {
	return id == "" || strings.EqualFold(id, DefaultDevice)
}

// matchDevice finds id among names by exact name, case-insensitive name,
// or decimal index. It returns -1 when nothing matches.
func matchDevice(id string, names []string) int {
	for i, name := range names {
		if name == id {
			return i
		}
	}
	for i, name := range names {
		if strings.EqualFold(name, id) {
			return i
		}
	}
	if idx, err := strconv.Atoi(id); err == nil && idx >= 0 && idx < len(names) {
		return idx
	}
	return -1
}

// unavailable wraps err as ErrDeviceUnavailable for device id
func unavailable(id string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %q not found", ErrDeviceUnavailable, id)
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %q: %v", ErrDeviceUnavailable, id, err)
}
