//go:build rp2040 || rp2350

package platform

import (
	"context"
	"image/color"
	"io"
	"machine"
	"math/bits"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"

	"songbird-go/errcode"
	"songbird-go/hal"
	"songbird-go/services/bridge"
	"songbird-go/types"
	"songbird-go/x/fmtx"
	"songbird-go/x/timex"
)

// New returns the Songbird board bindings: RP2 GPIO and PWM, the USB-CDC
// serial console, the SSD1306 display and the uartx bridge dialler. Audio
// stays on the null port on this target; the codec transport is vendor
// glue outside this tree.
func New() Setup {
	fmtx.DefaultOutput = serialPort{}
	bridge.UARTDial = dialUART
	return Setup{
		Pins:    rp2Pins{},
		Console: serialPort{},
		Display: newOLED,
		Audio:   hal.NullAudioPort{},
	}
}

// ---- GPIO ----

type rp2Pins struct{}

func (rp2Pins) GPIO(pin int) (hal.GPIOHandle, error) {
	if pin < 0 || pin > 29 {
		return nil, errcode.UnknownPin
	}
	return &rp2Pin{pin: machine.Pin(pin)}, nil
}

func (rp2Pins) PWM(pin int) (hal.PWMHandle, error) { return claimPWM(pin) }

type rp2Pin struct {
	pin machine.Pin
}

func (p *rp2Pin) Number() int { return int(p.pin) }

func (p *rp2Pin) ConfigureInput(pull hal.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}
	p.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p *rp2Pin) ConfigureOutput(initial bool) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(initial)
	return nil
}

func (p *rp2Pin) Set(level bool) { p.pin.Set(level) }
func (p *rp2Pin) Get() bool      { return p.pin.Get() }

func (p *rp2Pin) Toggle() {
	if p.pin.Get() {
		p.pin.Low()
	} else {
		p.pin.High()
	}
}

// ---- PWM ----

// pwmCtrl is the surface shared by machine.PWM0..PWM7.
type pwmCtrl interface {
	Configure(config machine.PWMConfig) error
	Top() uint32
	Set(channel uint8, value uint32)
}

func pwmGroupBySlice(slice uint8) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	}
	return nil
}

// ledPWMPeriod is the 25 kHz LED carrier.
var ledPWMPeriod = timex.PeriodFromHz(25000)

func claimPWM(pin int) (hal.PWMHandle, error) {
	slice, err := machine.PWMPeripheral(machine.Pin(pin))
	if err != nil {
		return nil, err
	}
	ctrl := pwmGroupBySlice(slice)
	if ctrl == nil {
		return nil, errcode.UnknownPin
	}
	// The LED pins share one slice; the second claim re-applies the
	// same period, which the counter tolerates.
	if err := ctrl.Configure(machine.PWMConfig{Period: ledPWMPeriod}); err != nil {
		return nil, err
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinPWM})
	return &rp2PWM{pin: pin, ctrl: ctrl, channel: uint8(pin & 1)}, nil
}

// rp2PWM drives one channel of a configured slice. Even pins map to
// channel A, odd pins to channel B.
type rp2PWM struct {
	pin     int
	ctrl    pwmCtrl
	channel uint8
}

func (p *rp2PWM) Pin() int { return p.pin }

// Set maps logical brightness [0,255] onto the slice counter.
func (p *rp2PWM) Set(brightness uint8) {
	top := p.ctrl.Top()
	p.ctrl.Set(p.channel, uint32(brightness)*top/255)
}

// ---- Display ----

var pixelOn = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// tomThumbAscent is the baseline offset of the TomThumb glyphs.
const tomThumbAscent = 5

// barSlots is the segment capacity of one level bar. Eight 8 px slots
// fill each half of the 128 px row.
const barSlots = 8

// newOLED opens the I2C status display described by cfg.
func newOLED(cfg types.DisplayConfig) (hal.Display, error) {
	bus := i2cBusFor(cfg.SDAPin)
	machine.Pin(cfg.SDAPin).Configure(machine.PinConfig{Mode: machine.PinI2C})
	machine.Pin(cfg.SCLPin).Configure(machine.PinConfig{Mode: machine.PinI2C})
	err := bus.Configure(machine.I2CConfig{
		SDA:       machine.Pin(cfg.SDAPin),
		SCL:       machine.Pin(cfg.SCLPin),
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		return nil, err
	}
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Width:   int16(cfg.Width),
		Height:  int16(cfg.Height),
		Address: uint16(cfg.Addr),
	})
	dev.ClearDisplay()
	return &oled{dev: dev, cfg: cfg}, nil
}

// i2cBusFor picks the controller that muxes onto the configured SDA pin.
// RP2 routes SDA pins 0,4,8,... to I2C0 and 2,6,10,... to I2C1.
func i2cBusFor(sda int) *machine.I2C {
	if sda%4 == 2 {
		return machine.I2C1
	}
	return machine.I2C0
}

type oled struct {
	dev ssd1306.Device
	cfg types.DisplayConfig

	status  string
	rate    string
	barIn   uint8
	barOut  uint8
	birdIn  bool
	birdOut bool
}

func (d *oled) SetStatus(text string) { d.status = text }
func (d *oled) SetRate(label string)  { d.rate = label }
func (d *oled) SetBars(in, out uint8) { d.barIn, d.barOut = in, out }
func (d *oled) SetBirds(in, out bool) { d.birdIn, d.birdOut = in, out }

func (d *oled) Flush() error {
	d.dev.ClearBuffer()
	if d.birdIn {
		d.drawBird(d.cfg.BirdLeftX, d.cfg.BirdY, false)
	}
	if d.birdOut {
		d.drawBird(d.cfg.BirdRightX, d.cfg.BirdY, true)
	}
	d.drawBar(0, d.cfg.BarY, d.barIn)
	d.drawBar(d.cfg.BarSpacing, d.cfg.BarY, d.barOut)
	base := d.cfg.StatusY + tomThumbAscent
	tinyfont.WriteLine(&d.dev, &tinyfont.TomThumb, 1, base, d.status, pixelOn)
	if d.rate != "" {
		_, w := tinyfont.LineWidth(&tinyfont.TomThumb, d.rate)
		tinyfont.WriteLine(&d.dev, &tinyfont.TomThumb, int16(d.cfg.Width)-int16(w)-1, base, d.rate, pixelOn)
	}
	return d.dev.Display()
}

func (d *oled) drawBar(x0, y int16, segs uint8) {
	if segs > barSlots {
		segs = barSlots
	}
	pitch := d.cfg.BarSpacing / barSlots
	for s := int16(0); s < int16(segs); s++ {
		d.fillRect(x0+s*pitch, y, pitch-2, 8)
	}
}

func (d *oled) fillRect(x0, y0, w, h int16) {
	for x := int16(0); x < w; x++ {
		for y := int16(0); y < h; y++ {
			d.dev.SetPixel(x0+x, y0+y, pixelOn)
		}
	}
}

// birdRows is an 8x8 songbird silhouette, beak facing right. The MSB of
// each row is the leftmost pixel; drawBird mirrors it for the right perch.
var birdRows = [8]uint8{
	0b00000110,
	0b00001111,
	0b10001110,
	0b11011110,
	0b01111110,
	0b00111100,
	0b00011000,
	0b00010100,
}

func (d *oled) drawBird(x0, y0 int16, mirror bool) {
	for row := int16(0); row < 8; row++ {
		line := birdRows[row]
		if mirror {
			line = bits.Reverse8(line)
		}
		for col := int16(0); col < 8; col++ {
			if line&(0x80>>uint(col)) != 0 {
				d.dev.SetPixel(x0+col, y0+row, pixelOn)
			}
		}
	}
}

// ---- Bridge UART ----

// dialUART configures the UART instance muxed onto the requested pins and
// wraps it as a stream. ctx scopes pending reads to the link lifetime.
func dialUART(ctx context.Context, cfg bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartForTx(cfg.TxPin)
	err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(cfg.Baud),
		TX:       machine.Pin(cfg.TxPin),
		RX:       machine.Pin(cfg.RxPin),
	})
	if err != nil {
		return nil, err
	}
	return &uartLink{
		u:           hw,
		ctx:         ctx,
		readTimeout: time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
	}, nil
}

// uartForTx selects the instance by pin function: UART1 drives TX on
// GP4/GP8/GP20/GP24, UART0 the rest.
func uartForTx(tx int) *uartx.UART {
	switch tx {
	case 4, 8, 20, 24:
		return uartx.UART1
	default:
		return uartx.UART0
	}
}

type uartLink struct {
	u           *uartx.UART
	ctx         context.Context
	readTimeout time.Duration
}

func (l *uartLink) Read(p []byte) (int, error) {
	ctx := l.ctx
	if l.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.readTimeout)
		defer cancel()
	}
	return l.u.RecvSomeContext(ctx, p)
}

func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }

// Close leaves the peripheral configured for the next dial.
func (l *uartLink) Close() error { return nil }

// ---- Console ----

// serialPort adapts the USB-CDC console to a blocking io.ReadWriter.
// machine.Serial reads never block, so Read polls the RX buffer.
type serialPort struct{}

func (serialPort) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if machine.Serial.Buffered() > 0 {
			n := 0
			for n < len(p) && machine.Serial.Buffered() > 0 {
				b, err := machine.Serial.ReadByte()
				if err != nil {
					break
				}
				p[n] = b
				n++
			}
			if n > 0 {
				return n, nil
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (serialPort) Write(p []byte) (int, error) { return machine.Serial.Write(p) }
