package hpamp

import (
	"testing"

	"songbird-go/hal"
)

// recordPin captures level changes; the clk fake samples the direction pin
// on each rising edge, like the real part.
type recordPin struct {
	level bool
	out   bool
}

var _ hal.GPIOHandle = (*recordPin)(nil)

func (p *recordPin) Number() int                     { return 0 }
func (p *recordPin) ConfigureInput(hal.Pull) error   { p.out = false; return nil }
func (p *recordPin) ConfigureOutput(init bool) error { p.out = true; p.level = init; return nil }
func (p *recordPin) Set(v bool)                      { p.level = v }
func (p *recordPin) Get() bool                       { return p.level }
func (p *recordPin) Toggle()                         { p.level = !p.level }

type clockPin struct {
	recordPin
	dir     *recordPin
	ups     int
	downs   int
}

func (p *clockPin) Set(v bool) {
	if v && !p.level { // rising edge: sample direction
		if p.dir.level {
			p.ups++
		} else {
			p.downs++
		}
	}
	p.level = v
}

func newAmp(steps int) (*Amp, *clockPin, *recordPin) {
	dir := &recordPin{}
	clk := &clockPin{dir: dir}
	sd := &recordPin{}
	a := New(clk, dir, sd, Config{Steps: steps})
	if err := a.Init(); err != nil {
		panic(err)
	}
	return a, clk, sd
}

func TestInitLeavesAmpShutDown(t *testing.T) {
	_, _, sd := newAmp(16)
	if !sd.level {
		t.Fatal("shutdown line not asserted after Init")
	}
}

func TestCalibrateWalksFullRangeDown(t *testing.T) {
	a, clk, _ := newAmp(16)
	a.Calibrate()
	if clk.downs != 16 || clk.ups != 0 {
		t.Fatalf("calibrate pulses: %d down / %d up, want 16/0", clk.downs, clk.ups)
	}
	if a.Position() != 0 {
		t.Fatalf("position after calibrate: %d", a.Position())
	}
}

func TestVolumeStepsClampAtRange(t *testing.T) {
	a, clk, _ := newAmp(8)
	a.Calibrate()
	clk.downs = 0

	if got := a.VolumeUp(5); got != 5 {
		t.Fatalf("up 5 -> %d", got)
	}
	if got := a.VolumeUp(10); got != 8 {
		t.Fatalf("up past top -> %d, want clamp at 8", got)
	}
	if clk.ups != 8 {
		t.Fatalf("clocked %d up pulses, want 8 (no pulses past the top)", clk.ups)
	}

	if got := a.VolumeDown(20); got != 0 {
		t.Fatalf("down past bottom -> %d", got)
	}
	if clk.downs != 8 {
		t.Fatalf("clocked %d down pulses, want 8", clk.downs)
	}
}

func TestSetVolumeStepsToTarget(t *testing.T) {
	a, clk, _ := newAmp(64)
	a.Calibrate()
	clk.downs = 0

	a.SetVolume(40)
	if a.Position() != 40 || clk.ups != 40 {
		t.Fatalf("set 40: pos=%d ups=%d", a.Position(), clk.ups)
	}
	a.SetVolume(25)
	if a.Position() != 25 || clk.downs != 15 {
		t.Fatalf("set 25: pos=%d downs=%d", a.Position(), clk.downs)
	}
	a.SetVolume(1000)
	if a.Position() != 64 {
		t.Fatalf("set past range: pos=%d", a.Position())
	}
}

func TestEnableShutdownToggleLine(t *testing.T) {
	a, _, sd := newAmp(16)
	a.Enable()
	if sd.level || !a.Enabled() {
		t.Fatal("enable did not clear shutdown line")
	}
	a.Shutdown()
	if !sd.level || a.Enabled() {
		t.Fatal("shutdown did not assert line")
	}
}
