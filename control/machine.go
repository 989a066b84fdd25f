// Package control owns the appliance operating mode: the state machine
// that consumes button edges, the route flags derived from the mode, and
// the per-tick coordinator that composes UI snapshots.
package control

import (
	"songbird-go/types"
)

// Route is the audio-path effect of a mode. It is recomputed from scratch
// on every transition rather than toggled incrementally.
type Route struct {
	Enabled bool // graph passes audio
	Muted   bool // output stage silenced, input metering continues
}

// RouteFor maps a mode to its route flags.
func RouteFor(m types.Mode) Route {
	switch m {
	case types.ModeActive:
		return Route{Enabled: true}
	case types.ModeMuted:
		return Route{Enabled: true, Muted: true}
	}
	return Route{}
}

// Transition records one Apply outcome.
type Transition struct {
	From    types.Mode
	To      types.Mode
	Changed bool
}

// Machine holds the mode singleton. It starts in standby and runs for the
// process lifetime; every (mode, event) pair maps to exactly one outcome.
type Machine struct {
	mode types.Mode
}

func NewMachine() Machine {
	return Machine{mode: types.ModeStandby}
}

func (m *Machine) Mode() types.Mode { return m.mode }

// Apply consumes one button edge. Only release edges qualify, so a
// transition always follows a completed press-release gesture; press
// edges and the reserved left/right buttons fall through unchanged.
func (m *Machine) Apply(id types.ButtonID, ev types.ButtonEvent) Transition {
	tr := Transition{From: m.mode, To: m.mode}
	if ev != types.EventReleased {
		return tr
	}

	switch m.mode {
	case types.ModeStandby:
		if id == types.ButtonUp {
			m.mode = types.ModeActive
		}
	case types.ModeActive:
		switch id {
		case types.ButtonUp:
			m.mode = types.ModeStandby
		case types.ButtonDown:
			m.mode = types.ModeMuted
		}
	case types.ModeMuted:
		switch id {
		case types.ButtonUp:
			m.mode = types.ModeStandby
		case types.ButtonDown:
			m.mode = types.ModeActive
		}
	}

	tr.To = m.mode
	tr.Changed = tr.To != tr.From
	return tr
}
