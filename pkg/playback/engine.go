// ABOUTME: Streaming noise engine
// ABOUTME: Start/stop control, lock-free color and volume, device switching and fault handling
package playback

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/remrama/smacc-go/pkg/audio"
	"github.com/remrama/smacc-go/pkg/audio/output"
	"github.com/remrama/smacc-go/pkg/noise"
)

const (
	// DefaultVolume is the level noise starts at
	DefaultVolume = 0.5

	// DefaultFramesPerBuffer is the device callback size hint
	DefaultFramesPerBuffer = 1024
)

// Config holds engine configuration
type Config struct {
	// Backend opens output streams (required)
	Backend output.Backend

	// SampleRate of the output stream (default: 44100)
	SampleRate int

	// BlockFrames is the length of each generated noise block, overlap
	// included (default: the smallest power of two covering one second)
	BlockFrames int

	// CrossfadeFrames overlap consecutive blocks, at most half a block
	// (default: 10ms of audio)
	CrossfadeFrames int

	// FramesPerBuffer is passed to the backend (default: 1024)
	FramesPerBuffer int

	// Color selected before the first Start (default: white)
	Color noise.Color

	// Volume in [0, 1] (default: 0.5)
	Volume *float64

	// Device selected before the first Start (default: system default)
	Device string

	// Seed for the noise generator; zero seeds from the clock
	Seed int64

	// EventBuffer is the capacity of each event channel (default: 64)
	EventBuffer int
}

// Engine streams one color of noise to one output device at a time
type Engine struct {
	cfg     Config
	backend output.Backend

	// Shared with the device thread
	color    atomic.Int32
	volume   atomic.Uint64 // math.Float64bits
	running  atomic.Bool
	blocks   atomic.Int64
	glitches atomic.Int64
	info     atomic.Pointer[sessionInfo]
	render   atomic.Pointer[renderer]

	// Serializes Start, Stop and SetDevice
	mu       sync.Mutex
	stream   output.Stream
	sessions int64

	events   *broadcaster
	defaultC <-chan Event
}

type sessionInfo struct {
	session string
	device  string
}

// New creates a stopped engine
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("playback: no output backend")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidParameter, cfg.SampleRate)
	}
	if cfg.BlockFrames == 0 {
		cfg.BlockFrames = blockSize(cfg.SampleRate)
	}
	if cfg.BlockFrames < noise.MinSamples {
		return nil, fmt.Errorf("%w: block of %d frames", ErrInvalidParameter, cfg.BlockFrames)
	}
	if cfg.CrossfadeFrames == 0 {
		cfg.CrossfadeFrames = cfg.SampleRate / 100
	}
	if cfg.CrossfadeFrames < 0 {
		cfg.CrossfadeFrames = 0
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if !cfg.Color.Valid() {
		return nil, fmt.Errorf("%w: color %d", ErrInvalidParameter, int32(cfg.Color))
	}
	volume := DefaultVolume
	if cfg.Volume != nil {
		volume = *cfg.Volume
	}
	if !validVolume(volume) {
		return nil, fmt.Errorf("%w: volume %v outside [0, 1]", ErrInvalidParameter, volume)
	}
	if cfg.Device == "" {
		cfg.Device = output.DefaultDevice
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	e := &Engine{
		cfg:     cfg,
		backend: cfg.Backend,
		events:  newBroadcaster(cfg.EventBuffer),
	}
	e.color.Store(int32(cfg.Color))
	e.volume.Store(math.Float64bits(volume))
	e.info.Store(&sessionInfo{device: cfg.Device})
	e.defaultC, _ = e.events.subscribe()

	return e, nil
}

// Events returns the engine's default event channel
func (e *Engine) Events() <-chan Event {
	return e.defaultC
}

// Subscribe returns an additional event channel and a function that
// stops delivery to it
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// Backend returns the output backend in use
func (e *Engine) Backend() output.Backend {
	return e.backend
}

// Devices lists the backend's output devices
func (e *Engine) Devices() ([]output.Device, error) {
	return e.backend.Devices()
}

// Color returns the active noise color
func (e *Engine) Color() noise.Color {
	return noise.Color(e.color.Load())
}

// Volume returns the active volume
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.volume.Load())
}

// Running reports whether a session is active
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Status returns a snapshot of the engine. It never blocks.
func (e *Engine) Status() Status {
	info := e.info.Load()
	state := Stopped
	if e.running.Load() {
		state = Running
	}
	return Status{
		State:    state,
		Color:    e.Color(),
		Volume:   e.Volume(),
		Device:   info.device,
		Session:  info.session,
		Backend:  e.backend.Name(),
		Blocks:   e.blocks.Load(),
		Glitches: e.glitches.Load(),
	}
}

// Start begins streaming color to deviceID. An empty deviceID uses the
// currently selected device. Starting a running engine does nothing.
func (e *Engine) Start(color noise.Color, deviceID string) error {
	if !color.Valid() {
		return fmt.Errorf("%w: color %d", ErrInvalidParameter, int32(color))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	if deviceID == "" {
		deviceID = e.info.Load().device
	}
	return e.startLocked(color, deviceID)
}

func (e *Engine) startLocked(color noise.Color, deviceID string) error {
	e.sessions++
	session := uuid.New().String()
	r := newRenderer(e, session, e.cfg.Seed+e.sessions, e.cfg.BlockFrames, e.cfg.CrossfadeFrames)

	stream, err := e.backend.Open(output.StreamConfig{
		DeviceID:        deviceID,
		Format:          audio.Format{SampleRate: e.cfg.SampleRate, Channels: 1, BitDepth: 32},
		FramesPerBuffer: e.cfg.FramesPerBuffer,
		Render:          r.Render,
		OnError:         e.faultHandler(session),
	})
	if err != nil {
		log.Printf("[engine] Failed to open device %q: %v", deviceID, err)
		return asUnavailable(deviceID, err)
	}

	e.color.Store(int32(color))
	e.blocks.Store(0)
	e.glitches.Store(0)
	e.info.Store(&sessionInfo{session: session, device: deviceID})
	e.running.Store(true)
	r.start()
	e.render.Store(r)

	if err := stream.Start(); err != nil {
		e.running.Store(false)
		e.render.Store(nil)
		r.close()
		e.info.Store(&sessionInfo{device: deviceID})
		if cerr := stream.Close(); cerr != nil {
			log.Printf("[engine] Failed to close device %q: %v", deviceID, cerr)
		}
		log.Printf("[engine] Failed to start device %q: %v", deviceID, err)
		return asUnavailable(deviceID, err)
	}
	e.stream = stream

	log.Printf("[engine] NoiseStarted color=%s device=%s volume=%.2f session=%s",
		color, deviceID, e.Volume(), session)
	e.publish(StateChanged, session, nil)
	return nil
}

// Stop ends the session, returning once the device has drained. Stopping
// a stopped engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() {
		return nil
	}
	session := e.info.Load().session
	err := e.teardownLocked()
	log.Printf("[engine] NoiseStopped session=%s", session)
	e.publish(StateChanged, session, nil)
	return err
}

// teardownLocked stops and releases the stream; the engine is Stopped
// afterwards even when the device reports errors
func (e *Engine) teardownLocked() error {
	e.running.Store(false)
	info := e.info.Load()
	e.info.Store(&sessionInfo{device: info.device})

	if e.stream == nil {
		return nil
	}
	err := errors.Join(e.stream.Stop(), e.stream.Close())
	e.stream = nil
	if r := e.render.Swap(nil); r != nil {
		r.close()
	}
	if err != nil {
		log.Printf("[engine] Error releasing device %q: %v", info.device, err)
	}
	return err
}

// SetColor switches the noise color from the next block on
func (e *Engine) SetColor(color noise.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: color %d", ErrInvalidParameter, int32(color))
	}
	if noise.Color(e.color.Swap(int32(color))) == color {
		return nil
	}
	if r := e.render.Load(); r != nil {
		r.refresh()
	}
	log.Printf("[engine] Color: %s", color)
	e.publish(ColorChanged, e.info.Load().session, nil)
	return nil
}

// SetVolume sets the output level in [0, 1] from the next device
// callback on. Out-of-range values leave the volume unchanged.
func (e *Engine) SetVolume(volume float64) error {
	if !validVolume(volume) {
		return fmt.Errorf("%w: volume %v outside [0, 1]", ErrInvalidParameter, volume)
	}
	if math.Float64frombits(e.volume.Swap(math.Float64bits(volume))) == volume {
		return nil
	}
	e.publish(VolumeChanged, e.info.Load().session, nil)
	return nil
}

// SetDevice selects the output device. A running session is restarted
// on the new device with the active color. If the new device cannot be
// opened the engine is left stopped and the previous selection is kept.
func (e *Engine) SetDevice(deviceID string) error {
	if deviceID == "" {
		deviceID = output.DefaultDevice
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.info.Load()
	if previous.device == deviceID {
		return nil
	}

	if !e.running.Load() {
		e.info.Store(&sessionInfo{device: deviceID})
		log.Printf("[engine] Device: %s", deviceID)
		e.publish(DeviceChanged, "", nil)
		return nil
	}

	log.Printf("[engine] Switching device %s -> %s", previous.device, deviceID)
	if err := e.teardownLocked(); err != nil {
		log.Printf("[engine] Previous device did not close cleanly: %v", err)
	}
	if err := e.startLocked(e.Color(), deviceID); err != nil {
		e.info.Store(&sessionInfo{device: previous.device})
		log.Printf("[engine] NoiseStopped session=%s", previous.session)
		e.publish(StateChanged, previous.session, err)
		return err
	}
	e.publish(DeviceChanged, e.info.Load().session, nil)
	return nil
}

// faultHandler returns the OnError callback for a session. The device
// may call it from its own thread, repeatedly; only the first report is
// acted on, and only if the session is still current.
func (e *Engine) faultHandler(session string) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			go e.handleFault(session, err)
		})
	}
}

func (e *Engine) handleFault(session string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() || e.info.Load().session != session {
		return
	}
	if !errors.Is(err, ErrStreamFault) {
		err = fmt.Errorf("%w: %w", ErrStreamFault, err)
	}

	log.Printf("[engine] Stream fault on session %s: %v", session, err)
	if terr := e.teardownLocked(); terr != nil {
		log.Printf("[engine] Error releasing faulted stream: %v", terr)
	}
	log.Printf("[engine] NoiseStopped session=%s", session)
	e.publish(StreamFault, session, err)
	e.publish(StateChanged, session, nil)
}

func (e *Engine) publish(kind EventKind, session string, err error) {
	e.events.publish(Event{
		Kind:    kind,
		Session: session,
		Time:    time.Now(),
		Err:     err,
		Status:  e.Status(),
	})
}

// blockSize returns the smallest power of two of at least rate frames,
// keeping block generation on the radix-2 FFT path
func blockSize(rate int) int {
	n := noise.MinSamples
	for n < rate {
		n <<= 1
	}
	return n
}

func validVolume(v float64) bool {
	return v >= 0 && v <= 1
}
