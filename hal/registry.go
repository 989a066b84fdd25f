package hal

import (
	"sync"

	"songbird-go/errcode"
)

// PinFunc records what a claimed pin is used for, for diagnostics.
type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	FuncPWM
)

func (f PinFunc) String() string {
	switch f {
	case FuncGPIOOut:
		return "gpio_out"
	case FuncPWM:
		return "pwm"
	}
	return "gpio_in"
}

// PinFactory builds handles for physical pins. Platform code registers one
// at startup; fakes stand in for it in tests.
type PinFactory interface {
	GPIO(pin int) (GPIOHandle, error)
	PWM(pin int) (PWMHandle, error)
}

type claim struct {
	owner string
	fn    PinFunc
}

// Registry tracks per-pin ownership so two services can never configure
// the same GPIO. Claims persist for the process lifetime unless released.
type Registry struct {
	mu     sync.Mutex
	pins   PinFactory
	claims map[int]claim
}

func NewRegistry(pins PinFactory) *Registry {
	return &Registry{
		pins:   pins,
		claims: make(map[int]claim),
	}
}

func (r *Registry) claimPin(owner string, pin int, fn PinFunc) error {
	if pin < 0 {
		return errcode.UnknownPin
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, taken := r.claims[pin]; taken {
		if c.owner != owner {
			return errcode.PinInUse
		}
		return nil // re-claim by same owner is idempotent
	}
	r.claims[pin] = claim{owner: owner, fn: fn}
	return nil
}

// ClaimGPIO reserves a pin and returns its GPIO handle.
func (r *Registry) ClaimGPIO(owner string, pin int, fn PinFunc) (GPIOHandle, error) {
	if err := r.claimPin(owner, pin, fn); err != nil {
		return nil, err
	}
	h, err := r.pins.GPIO(pin)
	if err != nil {
		r.Release(owner, pin)
		return nil, err
	}
	return h, nil
}

// ClaimPWM reserves a pin and returns its PWM handle.
func (r *Registry) ClaimPWM(owner string, pin int) (PWMHandle, error) {
	if err := r.claimPin(owner, pin, FuncPWM); err != nil {
		return nil, err
	}
	h, err := r.pins.PWM(pin)
	if err != nil {
		r.Release(owner, pin)
		return nil, err
	}
	return h, nil
}

// Release frees a pin if the caller owns it.
func (r *Registry) Release(owner string, pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.claims[pin]; ok && c.owner == owner {
		delete(r.claims, pin)
	}
}

// Owner reports who holds a pin, for the console's pin map.
func (r *Registry) Owner(pin int) (string, PinFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[pin]
	return c.owner, c.fn, ok
}
