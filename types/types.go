package types

// ---- Common service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// ---- System mode ----

// Mode is the top-level appliance state. The set is closed: every consumer
// switches over exactly these three values.
type Mode uint8

const (
	ModeStandby Mode = iota
	ModeActive
	ModeMuted
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeActive:
		return "active"
	case ModeMuted:
		return "muted"
	}
	return "unknown"
}

// ModeState is the retained payload on control/mode.
type ModeState struct {
	Mode Mode   `json:"mode"`
	Name string `json:"name"`
	TS   int64  `json:"ts_ms"`
}

// ---- Buttons ----

type ButtonID uint8

const (
	ButtonUp ButtonID = iota
	ButtonDown
	ButtonLeft
	ButtonRight

	NumButtons = 4
)

func (b ButtonID) String() string {
	switch b {
	case ButtonUp:
		return "up"
	case ButtonDown:
		return "down"
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	}
	return "unknown"
}

// ButtonFromName maps a lowercase button name back to its ID.
func ButtonFromName(name string) (ButtonID, bool) {
	switch name {
	case "up":
		return ButtonUp, true
	case "down":
		return ButtonDown, true
	case "left":
		return ButtonLeft, true
	case "right":
		return ButtonRight, true
	}
	return 0, false
}

// ButtonEvent is the edge reported by one debounce poll. None means the
// debounced state did not change this poll.
type ButtonEvent uint8

const (
	EventNone ButtonEvent = iota
	EventPressed
	EventReleased
)

func (e ButtonEvent) String() string {
	switch e {
	case EventPressed:
		return "pressed"
	case EventReleased:
		return "released"
	}
	return "none"
}

// ---- Audio routing ----

// RouteState is the retained payload on control/route. It is recomputed on
// every mode transition and is a pure function of the mode.
type RouteState struct {
	Enabled bool  `json:"enabled"` // graph passes audio
	Muted   bool  `json:"muted"`   // output stage silenced
	TS      int64 `json:"ts_ms"`
}

// ---- USB audio link ----

// USBState is the retained payload on audio/usb.
type USBState struct {
	Present bool   `json:"present"`
	RateHz  uint32 `json:"rate_hz"` // 0 when unknown
	TS      int64  `json:"ts_ms"`
}

// ---- Levels ----

// LevelValue is one channel's smoothed meter output, already mapped for
// each consumer: Segments for the display bar, Brightness for the LED.
type LevelValue struct {
	Level      float32 `json:"level"`      // smoothed, 0..1
	Segments   uint8   `json:"segments"`   // 0..bar segment count
	Brightness uint8   `json:"brightness"` // PWM duty, 0..255
	Singing    bool    `json:"singing"`    // above the activity threshold
}

// Levels is the retained payload on audio/levels, published at the level
// throttle period rather than per block.
type Levels struct {
	In  LevelValue `json:"in"`
	Out LevelValue `json:"out"`
	TS  int64      `json:"ts_ms"`
}

// ---- UI snapshot ----

// Snapshot is one complete frame of user-visible state, composed once per
// UI tick and published retained on ui/snapshot. Brightness fields are
// already gated for mode (LEDs dark in standby); Segments are not.
type Snapshot struct {
	Mode       Mode       `json:"mode"`
	Status     string     `json:"status"`
	USBPresent bool       `json:"usb_present"`
	RateLabel  string     `json:"rate_label"`
	In         LevelValue `json:"in"`
	Out        LevelValue `json:"out"`
	TS         int64      `json:"ts_ms"`
}

// ---- Control requests ----

// PressRequest is the payload for control/ctl/press: a synthetic button
// tap, one full press/release cycle through the debounce pipeline.
type PressRequest struct {
	Button string `json:"button"`
}

// ---- Heartbeat ----

type Heartbeat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
	Mode     string `json:"mode"`
	TS       int64  `json:"ts_ms"`
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
