package control

import (
	"time"

	"songbird-go/button"
	"songbird-go/types"
)

// TickInput is everything one coordinator tick consumes: raw button reads
// (already mapped to logical pressed=true), the latest level readings from
// the audio domain, and the USB link state.
type TickInput struct {
	Raw        [types.NumButtons]bool
	In         types.LevelValue
	Out        types.LevelValue
	USBPresent bool
	RateHz     uint32
}

// TickResult is everything one tick produces. Events holds at most one
// edge per button; Route is valid every tick, ModeChanged marks the ticks
// where it (and the mode) actually moved.
type TickResult struct {
	Snapshot    types.Snapshot
	Events      [types.NumButtons]types.ButtonEvent
	Route       Route
	ModeChanged bool
}

// Coordinator runs the UI timing domain's per-tick pipeline: debounce all
// buttons, feed edges to the machine, compose the snapshot. It does no
// I/O; the control service owns pins, topics and LEDs.
type Coordinator struct {
	buttons [types.NumButtons]button.Button
	machine Machine
}

func NewCoordinator(cfg types.ControlConfig) *Coordinator {
	c := &Coordinator{machine: NewMachine()}
	window := time.Duration(cfg.Buttons.DebounceMs) * time.Millisecond
	for i := range c.buttons {
		c.buttons[i] = button.New(window)
	}
	return c
}

func (c *Coordinator) Mode() types.Mode { return c.machine.Mode() }

// Tick advances every button channel by one poll, applies resulting edges
// to the machine in button-ID order, and composes the frame. Completes
// without blocking or allocation.
func (c *Coordinator) Tick(now time.Time, in TickInput) TickResult {
	var res TickResult

	for i := range c.buttons {
		ev := c.buttons[i].Poll(in.Raw[i], now)
		res.Events[i] = ev
		if ev == types.EventNone {
			continue
		}
		if tr := c.machine.Apply(types.ButtonID(i), ev); tr.Changed {
			res.ModeChanged = true
		}
	}

	mode := c.machine.Mode()
	res.Route = RouteFor(mode)

	snap := types.Snapshot{
		Mode:       mode,
		Status:     StatusText(mode, in.USBPresent),
		USBPresent: in.USBPresent,
		RateLabel:  RateLabel(in.RateHz),
		In:         in.In,
		Out:        in.Out,
		TS:         now.UnixMilli(),
	}
	// Standby darkens the LEDs; the bar segments still carry whatever the
	// meters read so the display path stays mode-agnostic.
	if mode == types.ModeStandby {
		snap.In.Brightness = 0
		snap.Out.Brightness = 0
	}
	res.Snapshot = snap
	return res
}
