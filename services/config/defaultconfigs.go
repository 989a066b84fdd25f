package config

// Per-device JSON, compiled in. The section values here must agree with
// the typed defaults in the types package; a test pins that.

const cfgSongbird = `{
  "control": {
    "buttons": {
      "up_pin": 5,
      "down_pin": 4,
      "left_pin": 6,
      "right_pin": 3,
      "active_low": true,
      "debounce_ms": 30
    },
    "leds": {
      "in_pin": 14,
      "out_pin": 15
    },
    "ui_tick_ms": 25
  },
  "audio": {
    "meter": {
      "threshold": 0.01,
      "smoothing": 0.1,
      "segments": 8,
      "bar_max": 0.8,
      "bright_off": 0,
      "bright_min": 8,
      "bright_max": 255
    },
    "amp": {
      "vol_clock_pin": 0,
      "vol_ud_pin": 1,
      "shutdown_pin": 2,
      "volume_steps": 64
    },
    "level_period_ms": 25
  },
  "display": {
    "width": 128,
    "height": 32,
    "addr": 60,
    "sda_pin": 16,
    "scl_pin": 17,
    "bar_y": 8,
    "bar_spacing": 64,
    "status_y": 24,
    "bird_y": 0,
    "bird_left_x": 0,
    "bird_right_x": 120
  },
  "heartbeat": {
    "period_ms": 5000
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {
        "baud": 115200,
        "rx_pin": 9,
        "tx_pin": 8
      }
    }
  }
}`

// The device table. Keys are device IDs (the launcher puts the same value
// in ctx under CtxDeviceKey). New build variants add an entry here.
var embeddedConfigs = map[string][]byte{
	"songbird": []byte(cfgSongbird),
}
