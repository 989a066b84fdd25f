// Package platform binds the hardware contracts to a concrete target.
// New returns RP2 peripherals under the rp2040/rp2350 build tags and
// inert host stand-ins otherwise, so the firmware main stays identical
// across targets.
package platform

import (
	"io"

	"songbird-go/hal"
	"songbird-go/types"
)

// Setup carries everything main wires into the services.
type Setup struct {
	Pins    hal.PinFactory
	Console io.ReadWriter
	Display func(cfg types.DisplayConfig) (hal.Display, error)
	Audio   hal.AudioPort
}
