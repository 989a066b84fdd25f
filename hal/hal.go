// Package hal defines the hardware boundary of the control core: GPIO,
// PWM, display and USB-audio contracts, plus the pin claim registry.
// Platform code provides the implementations; services only see these
// interfaces, so the whole core runs against fakes on the host.
package hal

import (
	"time"
)

// ---- GPIO ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	Toggle()
}

// ---- PWM ----

// PWMHandle drives one LED channel. Set takes the logical brightness in
// [0,255]; the platform adapter owns polarity and counter resolution.
type PWMHandle interface {
	Pin() int
	Set(brightness uint8)
}

// ---- Display ----

// Display consumes the snapshot-derived content descriptor. Implementations
// may cache and redraw lazily; Flush pushes the composed frame out.
type Display interface {
	SetStatus(text string)
	SetRate(label string)
	SetBars(in, out uint8)
	SetBirds(in, out bool)
	Flush() error
}

// ---- USB audio ----

// BlockFunc receives one audio block's peak magnitudes, in [0,1] per
// direction. It runs in the audio timing domain and must not block.
type BlockFunc func(inPeak, outPeak float32)

// AudioPort is the boundary to the USB/codec glue. The core never touches
// sample buffers: the port reports per-block magnitudes and accepts route
// flags, everything else stays behind the vendor layer.
type AudioPort interface {
	Start(onBlock BlockFunc) error
	SetRoute(enabled, muted bool)
	Present() bool
	SampleRate() uint32
	Close() error
}

// NullAudioPort is the port used when no USB transport exists (host build
// of the firmware binary, or a board without the codec fitted). It never
// produces blocks and always reports absent.
type NullAudioPort struct{}

func (NullAudioPort) Start(BlockFunc) error { return nil }
func (NullAudioPort) SetRoute(_, _ bool)    {}
func (NullAudioPort) Present() bool         { return false }
func (NullAudioPort) SampleRate() uint32    { return 0 }
func (NullAudioPort) Close() error          { return nil }

// ---- Clock ----

// Clock abstracts the monotonic time source so tests inject synthetic
// timestamps instead of sleeping through debounce windows.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
