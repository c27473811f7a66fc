//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output backend (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{}
}

// Name returns the backend name
func (p *PortAudio) Name() string { return "portaudio" }

// Devices reports that PortAudio is unavailable
func (p *PortAudio) Devices() ([]Device, error) {
	return nil, errPortAudioDisabled
}

// Open reports that PortAudio is unavailable
func (p *PortAudio) Open(cfg StreamConfig) (Stream, error) {
	return nil, unavailable(cfg.DeviceID, errPortAudioDisabled)
}
