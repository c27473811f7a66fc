// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams float32 samples to the system default device through an io.Reader pulled by oto
package output

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/remrama/smacc-go/pkg/audio"
)

// oto only allows one context per process, so it is shared by every stream
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// otoErrPoll is how often a running player is checked for errors
const otoErrPoll = 250 * time.Millisecond

// Oto output backend using the oto library
type Oto struct{}

// NewOto creates a new Oto backend
func NewOto() Backend {
	return &Oto{}
}

// Name returns the backend name
func (o *Oto) Name() string { return "oto" }

// Devices lists the single default device oto can drive
func (o *Oto) Devices() ([]Device, error) {
	return []Device{{ID: DefaultDevice, Name: "System default", Default: true}}, nil
}

// Open prepares a player on the default device
func (o *Oto) Open(cfg StreamConfig) (Stream, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if !isDefaultDevice(cfg.DeviceID) {
		return nil, unavailable(cfg.DeviceID, errors.New("oto only drives the system default device"))
	}

	ctx, err := otoContext(cfg)
	if err != nil {
		return nil, unavailable(cfg.DeviceID, err)
	}

	s := &otoStream{
		cfg:     cfg,
		samples: make([]float32, cfg.FramesPerBuffer*cfg.Format.Channels),
	}
	s.player = ctx.NewPlayer(s)
	s.player.SetBufferSize(cfg.FramesPerBuffer * cfg.Format.Channels * 4)

	return s, nil
}

// otoContext returns the process-wide context, creating it on first use
func otoContext(cfg StreamConfig) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	format := audio.Format{SampleRate: cfg.Format.SampleRate, Channels: cfg.Format.Channels, BitDepth: 32}

	if otoCtx != nil {
		// oto can't be reinitialized with a new format
		if otoFormat != format {
			return nil, fmt.Errorf("oto context already running at %s, cannot switch to %s", otoFormat, format)
		}
		return otoCtx, nil
	}

	bufferDuration := time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(format.SampleRate)
	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferDuration,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = format
	log.Printf("[output] oto context initialized: %s", format)
	return ctx, nil
}

type otoStream struct {
	cfg     StreamConfig
	player  *oto.Player
	samples []float32 // pre-allocated; only touched by oto's reader goroutine

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Read is pulled by oto whenever the device needs more audio
func (s *otoStream) Read(p []byte) (int, error) {
	n := len(p) / 4
	if n == 0 {
		return 0, nil
	}
	if len(s.samples) < n {
		s.samples = make([]float32, n)
	}
	samples := s.samples[:n]
	s.cfg.Render(samples)
	return audio.PutFloat32LE(p, samples) * 4, nil
}

// Start begins playback
func (s *otoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.started {
		return nil
	}

	s.player.Play()
	s.started = true
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.watch(s.done)
	return nil
}

// watch forwards the first player error to OnError
func (s *otoStream) watch(done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(otoErrPoll)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.player.Err(); err != nil {
				s.cfg.OnError(fmt.Errorf("%w: oto player: %v", ErrStreamFault, err))
				return
			}
		}
	}
}

// Stop pauses the player and waits for the error watcher to exit
func (s *otoStream) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.player.Pause()
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Close releases the player; the shared context stays alive for reuse
func (s *otoStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}
