package types

// Service configuration supplied on the retained "config/<service>" topics.
// Defaults mirror the Songbird board: values here are starting points, the
// config service may override any of them per build.

// ---- control ----

type ControlConfig struct {
	Buttons  ButtonsConfig `json:"buttons"`
	LEDs     LEDsConfig    `json:"leds"`
	UITickMs uint32        `json:"ui_tick_ms"`
}

type ButtonsConfig struct {
	UpPin      int    `json:"up_pin"`
	DownPin    int    `json:"down_pin"`
	LeftPin    int    `json:"left_pin"`
	RightPin   int    `json:"right_pin"`
	ActiveLow  bool   `json:"active_low"` // pressed reads low (internal pull-up)
	DebounceMs uint32 `json:"debounce_ms"`
}

// Pin returns the GPIO for a button ID, -1 if unknown.
func (c ButtonsConfig) Pin(id ButtonID) int {
	switch id {
	case ButtonUp:
		return c.UpPin
	case ButtonDown:
		return c.DownPin
	case ButtonLeft:
		return c.LeftPin
	case ButtonRight:
		return c.RightPin
	}
	return -1
}

type LEDsConfig struct {
	InPin  int `json:"in_pin"`  // blue, input level
	OutPin int `json:"out_pin"` // pink, output level
}

// ---- audio ----

type AudioConfig struct {
	Meter         MeterConfig `json:"meter"`
	Amp           AmpConfig   `json:"amp"`
	LevelPeriodMs uint32      `json:"level_period_ms"` // levels publish throttle
}

// MeterConfig carries the level pipeline tuning: EMA smoothing plus the
// two output mappings (bar segments and LED brightness).
type MeterConfig struct {
	Threshold float32 `json:"threshold"` // activity floor, 0..1
	Smoothing float32 `json:"smoothing"` // EMA factor, 0..1
	Segments  uint8   `json:"segments"`  // full-scale bar segment count
	BarMax    float32 `json:"bar_max"`   // level shown as a full bar
	BrightOff uint8   `json:"bright_off"`
	BrightMin uint8   `json:"bright_min"` // lowest visible duty
	BrightMax uint8   `json:"bright_max"`
}

// AmpConfig addresses the headphone amp's volume stepper and shutdown.
type AmpConfig struct {
	VolClockPin int `json:"vol_clock_pin"`
	VolUDPin    int `json:"vol_ud_pin"`
	ShutdownPin int `json:"shutdown_pin"`
	VolumeSteps int `json:"volume_steps"` // full range of the stepper
}

// ---- display ----

type DisplayConfig struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Addr   uint8 `json:"addr"`    // I2C address
	SDAPin int   `json:"sda_pin"` // secondary I2C bus, clear of the button pins
	SCLPin int   `json:"scl_pin"`

	BarY       int16 `json:"bar_y"`       // level bar row
	BarSpacing int16 `json:"bar_spacing"` // input bar x=0, output bar x=spacing
	StatusY    int16 `json:"status_y"`    // status text row
	BirdY      int16 `json:"bird_y"`
	BirdLeftX  int16 `json:"bird_left_x"`
	BirdRightX int16 `json:"bird_right_x"`
}

// ---- heartbeat ----

type HeartbeatConfig struct {
	PeriodMs uint32 `json:"period_ms"`
}

// ---- defaults (Songbird board) ----

func DefaultControl() ControlConfig {
	return ControlConfig{
		Buttons: ButtonsConfig{
			UpPin:      5,
			DownPin:    4,
			LeftPin:    6,
			RightPin:   3,
			ActiveLow:  true,
			DebounceMs: 30,
		},
		LEDs: LEDsConfig{
			InPin:  14,
			OutPin: 15,
		},
		UITickMs: 25,
	}
}

func DefaultAudio() AudioConfig {
	return AudioConfig{
		Meter: MeterConfig{
			Threshold: 0.01,
			Smoothing: 0.1,
			Segments:  8,
			BarMax:    0.8,
			BrightOff: 0,
			BrightMin: 8,
			BrightMax: 255,
		},
		Amp: AmpConfig{
			VolClockPin: 0,
			VolUDPin:    1,
			ShutdownPin: 2,
			VolumeSteps: 64,
		},
		LevelPeriodMs: 25,
	}
}

func DefaultDisplay() DisplayConfig {
	return DisplayConfig{
		Width:      128,
		Height:     32,
		Addr:       0x3C,
		SDAPin:     16,
		SCLPin:     17,
		BarY:       8,
		BarSpacing: 64,
		StatusY:    24,
		BirdY:      0,
		BirdLeftX:  0,
		BirdRightX: 120,
	}
}

func DefaultHeartbeat() HeartbeatConfig {
	return HeartbeatConfig{PeriodMs: 5000}
}
