// ABOUTME: Engine status snapshots and change events
// ABOUTME: Events fan out to subscribers without ever blocking the sender
package playback

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remrama/smacc-go/pkg/noise"
)

// State is the engine's playback state
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of the engine
type Status struct {
	State    State       `json:"state"`
	Color    noise.Color `json:"color"`
	Volume   float64     `json:"volume"`
	Device   string      `json:"device"`
	Session  string      `json:"session,omitempty"`
	Backend  string      `json:"backend"`
	Blocks   int64       `json:"blocks"`
	Glitches int64       `json:"glitches"`
}

// EventKind identifies what changed
type EventKind int

const (
	StateChanged EventKind = iota
	ColorChanged
	VolumeChanged
	DeviceChanged
	StreamFault
	CallbackFault
)

func (k EventKind) String() string {
	switch k {
	case StateChanged:
		return "state"
	case ColorChanged:
		return "color"
	case VolumeChanged:
		return "volume"
	case DeviceChanged:
		return "device"
	case StreamFault:
		return "stream_fault"
	case CallbackFault:
		return "callback_fault"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a change in the engine. Status is the snapshot taken
// right after the change.
type Event struct {
	Kind    EventKind
	Session string
	Time    time.Time
	Err     error
	Status  Status
}

// DefaultEventBuffer is the capacity of each subscriber channel
const DefaultEventBuffer = 64

// broadcaster delivers events to subscribers. The subscriber list is
// copy-on-write so the audio thread can publish without taking a lock.
type broadcaster struct {
	mu      sync.Mutex // serializes writers of subs
	subs    atomic.Pointer[[]chan Event]
	buffer  int
	dropped atomic.Int64
}

func newBroadcaster(buffer int) *broadcaster {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	b := &broadcaster{buffer: buffer}
	b.subs.Store(&[]chan Event{})
	return b
}

// subscribe registers a new listener
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	old := *b.subs.Load()
	next := make([]chan Event, len(old), len(old)+1)
	copy(next, old)
	next = append(next, ch)
	b.subs.Store(&next)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.remove(ch) })
	}
	return ch, cancel
}

func (b *broadcaster) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := *b.subs.Load()
	next := make([]chan Event, 0, len(old))
	for _, c := range old {
		if c != ch {
			next = append(next, c)
		}
	}
	b.subs.Store(&next)
}

// publish sends ev to every subscriber, dropping it for full channels
func (b *broadcaster) publish(ev Event) {
	for _, ch := range *b.subs.Load() {
		select {
		case ch <- ev:
		default:
			if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Printf("[engine] Event channel full, dropped %s event (%d dropped so far)", ev.Kind, n)
			}
		}
	}
}
