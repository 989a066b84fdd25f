//go:build !(rp2040 || rp2350)

package platform

import (
	"os"
	"sync"

	"songbird-go/errcode"
	"songbird-go/hal"
	"songbird-go/types"
)

// New returns host bindings: memory-backed pins, process stdio as the
// console, and no panel or audio transport. The firmware binary then
// runs on a workstation for bring-up; the simulator layers richer
// fakes over the same contracts.
func New() Setup {
	return Setup{
		Pins:    NewMemPins(),
		Console: stdio{},
		Display: func(types.DisplayConfig) (hal.Display, error) { return &nullDisplay{}, nil },
		Audio:   hal.NullAudioPort{},
	}
}

// ---- pins ----

// MemPin is a memory-backed pin. SetLevel on the factory drives input
// levels from outside the owning service, standing in for the signal.
type MemPin struct {
	mu     sync.RWMutex
	number int
	level  bool
	out    bool
	bright uint8
}

func (p *MemPin) Number() int { return p.number }

func (p *MemPin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.out = false
	// The idle level follows the pull, so active-low buttons read
	// released until something drives the pin.
	p.level = pull == hal.PullUp
	p.mu.Unlock()
	return nil
}

func (p *MemPin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *MemPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *MemPin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *MemPin) Toggle() { p.Set(!p.Get()) }

type memPWM struct {
	p *MemPin
}

func (m memPWM) Pin() int { return m.p.number }

func (m memPWM) Set(brightness uint8) {
	m.p.mu.Lock()
	m.p.bright = brightness
	m.p.mu.Unlock()
}

// MemPins hands out stable MemPin instances per number, so claims and
// outside observers share state.
type MemPins struct {
	mu   sync.Mutex
	pins map[int]*MemPin
}

func NewMemPins() *MemPins {
	return &MemPins{pins: make(map[int]*MemPin)}
}

func (m *MemPins) pin(n int) *MemPin {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[n]
	if !ok {
		p = &MemPin{number: n}
		m.pins[n] = p
	}
	return p
}

func (m *MemPins) GPIO(pin int) (hal.GPIOHandle, error) {
	if pin < 0 {
		return nil, errcode.UnknownPin
	}
	return m.pin(pin), nil
}

func (m *MemPins) PWM(pin int) (hal.PWMHandle, error) {
	if pin < 0 {
		return nil, errcode.UnknownPin
	}
	return memPWM{p: m.pin(pin)}, nil
}

// Get exposes the underlying pin for tests and the simulator.
func (m *MemPins) Get(n int) (*MemPin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[n]
	return p, ok
}

// SetLevel drives an input pin from outside the owning service.
func (m *MemPins) SetLevel(n int, level bool) { m.pin(n).Set(level) }

// Brightness reports the last PWM duty written to pin n.
func (m *MemPins) Brightness(n int) uint8 {
	p := m.pin(n)
	p.mu.RLock()
	v := p.bright
	p.mu.RUnlock()
	return v
}

// ---- console ----

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// ---- display ----

// nullDisplay swallows frames on targets without a panel.
type nullDisplay struct{}

func (*nullDisplay) SetStatus(string)   {}
func (*nullDisplay) SetRate(string)     {}
func (*nullDisplay) SetBars(_, _ uint8) {}
func (*nullDisplay) SetBirds(_, _ bool) {}
func (*nullDisplay) Flush() error       { return nil }
