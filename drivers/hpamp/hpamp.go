// Package hpamp drives the headphone amplifier: a clocked volume stepper
// (each clock edge moves one step in the direction held on the up/down
// pin) and an active-high shutdown line. The part has no readback, so the
// driver keeps a position estimate and offers a walk-to-zero calibration.
package hpamp

import (
	"time"

	"songbird-go/hal"
	"songbird-go/x/mathx"
)

type Config struct {
	Steps    int           // full range of the stepper
	PulseGap time.Duration // hold time per clock phase; 0 means no delay
}

type Amp struct {
	clk hal.GPIOHandle
	ud  hal.GPIOHandle
	sd  hal.GPIOHandle
	cfg Config

	pos     int
	enabled bool
}

func New(clk, ud, sd hal.GPIOHandle, cfg Config) *Amp {
	if cfg.Steps <= 0 {
		cfg.Steps = 64
	}
	return &Amp{clk: clk, ud: ud, sd: sd, cfg: cfg}
}

// Init configures the pins and leaves the amp shut down. Call Calibrate
// or Enable afterwards.
func (a *Amp) Init() error {
	if err := a.clk.ConfigureOutput(false); err != nil {
		return err
	}
	if err := a.ud.ConfigureOutput(false); err != nil {
		return err
	}
	// Shutdown asserted until the control path wants output.
	return a.sd.ConfigureOutput(true)
}

// Calibrate walks the stepper down through its full range so the position
// estimate is pinned at zero regardless of power-on state.
func (a *Amp) Calibrate() {
	for i := 0; i < a.cfg.Steps; i++ {
		a.step(false)
	}
	a.pos = 0
}

func (a *Amp) Enable() {
	a.sd.Set(false)
	a.enabled = true
}

func (a *Amp) Shutdown() {
	a.sd.Set(true)
	a.enabled = false
}

func (a *Amp) Enabled() bool { return a.enabled }

// Position is the driver's step estimate in [0, Steps].
func (a *Amp) Position() int { return a.pos }

// VolumeUp moves up to n steps toward full volume and returns the new
// position. Steps past the top are not clocked out.
func (a *Amp) VolumeUp(n int) int {
	for ; n > 0 && a.pos < a.cfg.Steps; n-- {
		a.step(true)
		a.pos++
	}
	return a.pos
}

// VolumeDown moves up to n steps toward silence.
func (a *Amp) VolumeDown(n int) int {
	for ; n > 0 && a.pos > 0; n-- {
		a.step(false)
		a.pos--
	}
	return a.pos
}

// SetVolume steps to an absolute position, clamped to the valid range.
func (a *Amp) SetVolume(target int) int {
	target = mathx.Clamp(target, 0, a.cfg.Steps)
	if target > a.pos {
		return a.VolumeUp(target - a.pos)
	}
	return a.VolumeDown(a.pos - target)
}

// step emits one clock pulse with the direction pin held first. Direction
// setup must precede the rising edge per the part's timing.
func (a *Amp) step(up bool) {
	a.ud.Set(up)
	a.hold()
	a.clk.Set(true)
	a.hold()
	a.clk.Set(false)
	a.hold()
}

func (a *Amp) hold() {
	if a.cfg.PulseGap > 0 {
		time.Sleep(a.cfg.PulseGap)
	}
}
