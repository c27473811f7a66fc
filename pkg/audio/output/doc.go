// ABOUTME: Audio output package for pull-based device streams
// ABOUTME: Provides Backend/Stream interfaces and oto, malgo, PortAudio and headless backends
// Package output opens callback-driven audio output streams.
//
// A Backend opens a Stream on a named device. The device pulls samples by
// calling the StreamConfig.Render function on its own thread, so Render
// must not block. Faults the device reports while running arrive on
// StreamConfig.OnError wrapped in ErrStreamFault.
//
// Example:
//
//	backend, err := output.New("oto")
//	stream, err := backend.Open(output.StreamConfig{
//	    DeviceID: output.DefaultDevice,
//	    Format:   audio.Format{SampleRate: 44100, Channels: 1, BitDepth: 32},
//	    Render:   func(out []float32) { fill(out) },
//	})
//	err = stream.Start()
//
// PortAudio support requires building with -tags portaudio.
package output
