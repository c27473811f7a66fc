// ABOUTME: Device callback renderer for the noise engine
// ABOUTME: Prepares crossfaded noise blocks off the device thread and copies them into callbacks
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/remrama/smacc-go/pkg/audio"
	"github.com/remrama/smacc-go/pkg/noise"
)

// NoiseGain scales unit-variance noise so that peaks beyond 4.5 standard
// deviations are the only samples clamped at full volume
const NoiseGain = 1 / 4.5

var errBlockNotReady = errors.New("next noise block not ready")

// block is a prepared run of samples. Its head already carries the
// crossfade from the block before it.
type block struct {
	samples []float32
	tail    []float32 // overlap faded out under the following block
	color   noise.Color
}

// renderer belongs to a single session. Blocks are generated by a
// producer goroutine and handed to the device thread through ready; the
// device thread only copies samples and never generates or allocates.
type renderer struct {
	eng     *Engine
	session string
	gen     *noise.Generator

	blockFrames int // generated length, overlap included
	fadeFrames  int
	fade        []float32 // equal-power fade-in gains; fade-out uses the mirror

	ready atomic.Pointer[block]
	wake  chan struct{}
	quit  chan struct{}
	wg    sync.WaitGroup

	// Producer state
	tail []float32 // tail of the newest prepared block
	base []float32 // tail the pending block was blended against

	// Device thread state
	cur []float32
	pos int
}

func newRenderer(eng *Engine, session string, seed int64, blockFrames, fadeFrames int) *renderer {
	if fadeFrames > blockFrames/2 {
		fadeFrames = blockFrames / 2
	}
	r := &renderer{
		eng:         eng,
		session:     session,
		gen:         noise.NewGenerator(seed),
		blockFrames: blockFrames,
		fadeFrames:  fadeFrames,
		fade:        make([]float32, fadeFrames),
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
	}
	for i := range r.fade {
		t := (float64(i) + 0.5) / float64(fadeFrames)
		r.fade[i] = float32(math.Sin(t * math.Pi / 2))
	}
	return r
}

// start prepares the first block and runs the producer until close
func (r *renderer) start() {
	r.fill()
	r.wg.Add(1)
	go r.run()
}

func (r *renderer) close() {
	close(r.quit)
	r.wg.Wait()
}

func (r *renderer) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case <-r.wake:
			r.fill()
		}
	}
}

// refresh asks the producer to prepare a block. It never blocks.
func (r *renderer) refresh() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// fill prepares the next block if none is pending, or replaces a pending
// block whose color is no longer selected
func (r *renderer) fill() {
	defer func() {
		if p := recover(); p != nil {
			r.fault(fmt.Errorf("generate panic: %v", p))
		}
	}()

	color := r.eng.Color()
	base := r.tail
	if pending := r.ready.Load(); pending != nil {
		if pending.color == color {
			return
		}
		// Not yet played: rebuild it on the same seam. If the device
		// thread took it meanwhile, follow it instead.
		if r.ready.CompareAndSwap(pending, nil) {
			base = r.base
		}
	}

	b, err := r.generate(color, base)
	if err != nil {
		r.fault(err)
		return
	}
	r.base = base
	r.tail = b.tail
	r.ready.Store(b)
}

// generate shapes one block in color and blends its head with prev
func (r *renderer) generate(color noise.Color, prev []float32) (*block, error) {
	samples, err := r.gen.Generate(color, r.blockFrames)
	if err != nil {
		return nil, fmt.Errorf("generate %s block: %w", color, err)
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s * NoiseGain)
	}
	for i := 0; i < r.fadeFrames; i++ {
		var faded float32
		if i < len(prev) {
			faded = prev[i] * r.fade[r.fadeFrames-1-i]
		}
		out[i] = out[i]*r.fade[i] + faded
	}

	played := r.blockFrames - r.fadeFrames
	return &block{samples: out[:played], tail: out[played:], color: color}, nil
}

// Render fills out with mono samples. When no block is ready the rest of
// the buffer is silent and a CallbackFault is reported; it never panics.
func (r *renderer) Render(out []float32) {
	defer func() {
		if p := recover(); p != nil {
			clear(out)
			r.cur, r.pos = nil, 0
			r.fault(fmt.Errorf("render panic: %v", p))
		}
	}()

	vol := float32(r.eng.Volume())
	for i := 0; i < len(out); {
		if r.pos >= len(r.cur) {
			b := r.ready.Swap(nil)
			r.refresh()
			if b == nil {
				clear(out[i:])
				r.fault(errBlockNotReady)
				return
			}
			r.cur, r.pos = b.samples, 0
			r.eng.blocks.Add(1)
		}
		n := copy(out[i:], r.cur[r.pos:])
		for j := i; j < i+n; j++ {
			out[j] = audio.Clamp(out[j] * vol)
		}
		r.pos += n
		i += n
	}
}

func (r *renderer) fault(err error) {
	r.eng.glitches.Add(1)
	r.eng.publish(CallbackFault, r.session, err)
}
