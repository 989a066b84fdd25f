// cmd/boardtest/main.go
//
// Front-panel bring-up for the Songbird board. Drives the LEDs, display
// and buttons straight through the hardware contracts, below the bus and
// service layer, so a fresh board can be checked pin by pin: LED ramps,
// a bar sweep with status lines on the OLED, then a button watch window
// that echoes debounced edges to the console.
package main

import (
	"time"

	"songbird-go/button"
	"songbird-go/hal"
	"songbird-go/platform"
	"songbird-go/types"
	"songbird-go/x/fmtx"
	"songbird-go/x/mathx"
	"songbird-go/x/timex"
)

// ---------- Configuration ----------

const (
	// Sequencing timing
	rampSteps  = 32
	rampDelay  = 40 * time.Millisecond
	sweepDwell = 250 * time.Millisecond

	// Button watch window per cycle
	watchWindow = 10 * time.Second
	pollPeriod  = 10 * time.Millisecond

	// Cycles: 0 = loop forever
	cyclesToRun = 0
)

var buttonNames = [types.NumButtons]string{"up", "down", "left", "right"}

// ---------- Main ----------

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[boardtest] songbird front-panel bring-up")

	setup := platform.New()
	reg := hal.NewRegistry(setup.Pins)
	ctl := types.DefaultControl()

	ledIn, err := reg.ClaimPWM("boardtest", ctl.LEDs.InPin)
	if err != nil {
		println("[boardtest] FAIL: claim LED in:", err.Error())
		return
	}
	ledOut, err := reg.ClaimPWM("boardtest", ctl.LEDs.OutPin)
	if err != nil {
		println("[boardtest] FAIL: claim LED out:", err.Error())
		return
	}

	disp, err := setup.Display(types.DefaultDisplay())
	if err != nil {
		println("[boardtest] WARN: display init failed:", err.Error())
		disp = nil
	}

	buttons, ok := claimButtons(reg, ctl.Buttons)
	if !ok {
		return
	}

	for cycle := 1; cyclesToRun == 0 || cycle <= cyclesToRun; cycle++ {
		fmtx.Printf("[boardtest] cycle %d\r\n", cycle)
		ledRamp(ledIn, ledOut)
		barSweep(disp)
		buttonWatch(buttons, ctl.Buttons.ActiveLow, time.Duration(ctl.Buttons.DebounceMs)*time.Millisecond)
		ledIn.Set(0)
		ledOut.Set(0)
	}
}

// ---------- Stages ----------

// ledRamp fades both LEDs up and back down so a miswired or dead channel
// is obvious at a glance.
func ledRamp(in, out hal.PWMHandle) {
	println("[boardtest] LED ramp")
	for step := 0; step <= rampSteps; step++ {
		t := uint16(step * 65535 / rampSteps)
		b := uint8(mathx.LerpU16(0, 255, t))
		in.Set(b)
		out.Set(255 - b)
		time.Sleep(rampDelay)
	}
	for step := rampSteps; step >= 0; step-- {
		t := uint16(step * 65535 / rampSteps)
		b := uint8(mathx.LerpU16(0, 255, t))
		in.Set(b)
		out.Set(255 - b)
		time.Sleep(rampDelay)
	}
}

// barSweep walks both level bars through their full range with the four
// status lines, covering every glyph row the appliance ever draws.
func barSweep(disp hal.Display) {
	if disp == nil {
		return
	}
	println("[boardtest] display sweep")
	lines := []string{"Press UP to start", "USB Loopback Active", "Output Muted", "Connect USB Audio"}
	for seg := uint8(0); seg <= 8; seg++ {
		disp.SetBars(seg, 8-seg)
		disp.SetBirds(seg%2 == 0, seg%2 == 1)
		disp.SetStatus(lines[int(seg)%len(lines)])
		disp.SetRate("48k")
		if err := disp.Flush(); err != nil {
			println("[boardtest] WARN: display flush failed:", err.Error())
			return
		}
		time.Sleep(sweepDwell)
	}
}

// buttonWatch polls all four buttons through the debounce pipeline and
// echoes each committed edge with a timestamp.
func buttonWatch(pins [types.NumButtons]hal.GPIOHandle, activeLow bool, window time.Duration) {
	fmtx.Printf("[boardtest] press buttons (%ds window)\r\n", int(watchWindow/time.Second))

	var chans [types.NumButtons]button.Button
	for i := range chans {
		chans[i] = button.New(window)
	}

	deadline := time.Now().Add(watchWindow)
	for time.Now().Before(deadline) {
		now := time.Now()
		for i := range chans {
			raw := pins[i].Get()
			if activeLow {
				raw = !raw
			}
			ev := chans[i].Poll(raw, now)
			if ev == types.EventNone {
				continue
			}
			fmtx.Printf("[boardtest] %d %s %s\r\n", timex.NowMs(), buttonNames[i], ev.String())
		}
		time.Sleep(pollPeriod)
	}
}

// ---------- Helpers ----------

func claimButtons(reg *hal.Registry, cfg types.ButtonsConfig) ([types.NumButtons]hal.GPIOHandle, bool) {
	var pins [types.NumButtons]hal.GPIOHandle
	pull := hal.PullUp
	if !cfg.ActiveLow {
		pull = hal.PullDown
	}
	for i := 0; i < types.NumButtons; i++ {
		h, err := reg.ClaimGPIO("boardtest", cfg.Pin(types.ButtonID(i)), hal.FuncGPIOIn)
		if err != nil {
			println("[boardtest] FAIL: claim button", buttonNames[i], err.Error())
			return pins, false
		}
		if err := h.ConfigureInput(pull); err != nil {
			println("[boardtest] FAIL: configure button", buttonNames[i], err.Error())
			return pins, false
		}
		pins[i] = h
	}
	return pins, true
}
