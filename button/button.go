// Package button turns noisy raw pin readings into clean press/release
// edges. One Button per physical channel; the caller polls each channel
// once per UI tick with a raw reading and a timestamp.
package button

import (
	"time"

	"songbird-go/types"
)

// State is the debounced logical state of one channel. Released is an edge
// state: it lasts exactly one poll, then decays to Idle.
type State uint8

const (
	StateIdle State = iota
	StatePressed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StatePressed:
		return "pressed"
	case StateReleased:
		return "released"
	}
	return "idle"
}

// Button tracks one input channel. The raw reading is mirrored immediately
// into physical; it is only committed to debounced after holding steady
// for the full window, so bounces inside the window produce no edges.
type Button struct {
	window time.Duration

	physical   bool
	lastChange time.Time
	debounced  bool

	current  State
	previous State
}

func New(window time.Duration) Button {
	return Button{window: window}
}

// Poll feeds one raw reading. At most one edge fires per poll, and only
// when the debounced state actually flips.
func (b *Button) Poll(raw bool, now time.Time) types.ButtonEvent {
	b.previous = b.current
	if b.current == StateReleased {
		b.current = StateIdle
	}

	if raw != b.physical {
		b.physical = raw
		b.lastChange = now
	}

	ev := types.EventNone
	if b.physical != b.debounced && now.Sub(b.lastChange) >= b.window {
		b.debounced = b.physical
		if b.debounced {
			ev = types.EventPressed
			b.current = StatePressed
		} else {
			ev = types.EventReleased
			b.current = StateReleased
		}
	}
	return ev
}

// State is the debounced state after the most recent poll.
func (b *Button) State() State { return b.current }

// Previous is the debounced state before the most recent poll. The pair
// lets callers tell "held" (Pressed/Pressed) from "just released"
// (Pressed/Released) without re-deriving timing.
func (b *Button) Previous() State { return b.previous }

// Down reports the committed debounced reading.
func (b *Button) Down() bool { return b.debounced }
