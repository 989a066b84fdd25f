package control

import (
	"songbird-go/types"
)

// Status lines shown on the bottom row of the OLED.
const (
	StatusStandby = "Press UP to start"
	StatusActive  = "USB Loopback Active"
	StatusMuted   = "Output Muted"
	StatusNoUSB   = "Connect USB Audio"
)

// StatusText selects the status line. A missing USB link overrides all
// three mode strings; it is a status condition, not a fault.
func StatusText(m types.Mode, usbPresent bool) string {
	if !usbPresent {
		return StatusNoUSB
	}
	switch m {
	case types.ModeActive:
		return StatusActive
	case types.ModeMuted:
		return StatusMuted
	}
	return StatusStandby
}

// RateLabel formats the USB sample rate for the corner of the display.
func RateLabel(hz uint32) string {
	switch hz {
	case 44100:
		return "44k"
	case 48000:
		return "48k"
	}
	return "??k"
}
