// ABOUTME: Panel configuration file
// ABOUTME: JSON settings that sit under the command-line flags; never written back
// Package config loads noise panel settings from an optional JSON file.
// Flags given on the command line override whatever the file sets.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
)

// Config holds panel settings.
type Config struct {
	Name            string      `json:"name"`
	Backend         string      `json:"backend"`
	Device          string      `json:"device"`
	Color           noise.Color `json:"color"`
	Volume          float64     `json:"volume"`
	SampleRate      int         `json:"sample_rate"`
	FramesPerBuffer int         `json:"frames_per_buffer"`
	Port            int         `json:"port"`
	MDNS            bool        `json:"mdns"`
	Autoplay        bool        `json:"autoplay"`
	LogFile         string      `json:"log_file"`
}

// Default returns a Config populated with the panel defaults.
func Default() Config {
	return Config{
		Name:            defaultName(),
		Backend:         "oto",
		Device:          output.DefaultDevice,
		Color:           noise.White,
		Volume:          0.5,
		SampleRate:      44100,
		FramesPerBuffer: 1024,
		Port:            8928,
		MDNS:            true,
		LogFile:         "smacc-noise.log",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unlike an optional preferences file, a path that was asked for must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := output.New(c.Backend); err != nil {
		return err
	}
	if !c.Color.Valid() {
		return fmt.Errorf("%w: color %d", noise.ErrInvalidParameter, int32(c.Color))
	}
	if c.Volume < 0 || c.Volume > 1 || c.Volume != c.Volume {
		return fmt.Errorf("%w: volume %v outside [0, 1]", noise.ErrInvalidParameter, c.Volume)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", noise.ErrInvalidParameter, c.SampleRate)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: frames per buffer %d", noise.ErrInvalidParameter, c.FramesPerBuffer)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", noise.ErrInvalidParameter, c.Port)
	}
	return nil
}

func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "smacc-noise"
	}
	return hostname + "-noise"
}
