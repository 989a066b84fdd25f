package hal

import (
	"testing"

	"songbird-go/errcode"
)

type fakePin struct {
	n     int
	out   bool
	level bool
}

var _ GPIOHandle = (*fakePin)(nil)

func (f *fakePin) Number() int                      { return f.n }
func (f *fakePin) ConfigureInput(Pull) error        { f.out = false; return nil }
func (f *fakePin) ConfigureOutput(init bool) error  { f.out = true; f.level = init; return nil }
func (f *fakePin) Set(v bool)                       { f.level = v }
func (f *fakePin) Get() bool                        { return f.level }
func (f *fakePin) Toggle()                          { f.level = !f.level }

type fakePWM struct {
	pin  int
	duty uint8
}

var _ PWMHandle = (*fakePWM)(nil)

func (f *fakePWM) Pin() int         { return f.pin }
func (f *fakePWM) Set(b uint8)      { f.duty = b }

type fakePins struct{}

func (fakePins) GPIO(pin int) (GPIOHandle, error) { return &fakePin{n: pin}, nil }
func (fakePins) PWM(pin int) (PWMHandle, error)   { return &fakePWM{pin: pin}, nil }

func TestClaimConflicts(t *testing.T) {
	r := NewRegistry(fakePins{})

	h, err := r.ClaimGPIO("control", 5, FuncGPIOIn)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if h.Number() != 5 {
		t.Fatalf("handle pin %d, want 5", h.Number())
	}

	if _, err := r.ClaimGPIO("audio", 5, FuncGPIOIn); err != errcode.PinInUse {
		t.Fatalf("conflicting claim: got %v, want pin_in_use", err)
	}

	// Same owner re-claim is idempotent.
	if _, err := r.ClaimGPIO("control", 5, FuncGPIOIn); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}

	r.Release("audio", 5) // non-owner release is a no-op
	if _, _, ok := r.Owner(5); !ok {
		t.Fatal("non-owner release freed the pin")
	}

	r.Release("control", 5)
	if _, err := r.ClaimGPIO("audio", 5, FuncGPIOIn); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestClaimUnknownPin(t *testing.T) {
	r := NewRegistry(fakePins{})
	if _, err := r.ClaimGPIO("control", -1, FuncGPIOIn); err != errcode.UnknownPin {
		t.Fatalf("got %v, want unknown_pin", err)
	}
}

func TestClaimPWM(t *testing.T) {
	r := NewRegistry(fakePins{})
	h, err := r.ClaimPWM("control", 14)
	if err != nil {
		t.Fatalf("claim pwm: %v", err)
	}
	if h.Pin() != 14 {
		t.Fatalf("pwm pin %d, want 14", h.Pin())
	}

	owner, fn, ok := r.Owner(14)
	if !ok || owner != "control" || fn != FuncPWM {
		t.Fatalf("owner record: %q %v %v", owner, fn, ok)
	}
}
