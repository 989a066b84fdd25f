// Package meter turns raw audio magnitudes into smoothed, quantized level
// readings. One Meter per direction; Update runs in the audio timing
// domain, once per block.
package meter

import (
	"songbird-go/types"
	"songbird-go/x/mathx"
)

// Meter holds one channel's smoothing state. Zero value is unusable; build
// with New so the mapping config is in place.
type Meter struct {
	cfg      types.MeterConfig
	smoothed float32
}

func New(cfg types.MeterConfig) Meter {
	return Meter{cfg: cfg}
}

// Update folds one raw magnitude into the smoothed level and returns the
// mapped reading. Out-of-range input is clamped, never rejected.
func (m *Meter) Update(raw float32) types.LevelValue {
	raw = mathx.Clamp(raw, 0, 1)
	m.smoothed += m.cfg.Smoothing * (raw - m.smoothed)
	m.smoothed = mathx.Clamp(m.smoothed, 0, 1)
	return m.Reading()
}

// Reading maps the current smoothed level without folding in new input.
func (m *Meter) Reading() types.LevelValue {
	return types.LevelValue{
		Level:      m.smoothed,
		Segments:   m.segments(),
		Brightness: m.brightness(),
		Singing:    m.smoothed >= m.cfg.Threshold,
	}
}

// Level is the bare smoothed value, for tests and telemetry.
func (m *Meter) Level() float32 { return m.smoothed }

// segments quantizes into [0, cfg.Segments]. BarMax sets the level shown
// as a full bar; headroom above it still reads full.
func (m *Meter) segments() uint8 {
	if m.cfg.BarMax <= 0 || m.cfg.Segments == 0 {
		return 0
	}
	frac := mathx.Clamp(m.smoothed, 0, m.cfg.BarMax) / m.cfg.BarMax
	n := uint8(frac * float32(m.cfg.Segments))
	return mathx.Min(n, m.cfg.Segments)
}

// brightness maps into off or [BrightMin, BrightMax]: silence is fully
// dark, any detected signal is at least dimly visible.
func (m *Meter) brightness() uint8 {
	if m.smoothed < m.cfg.Threshold {
		return m.cfg.BrightOff
	}
	lo := m.cfg.BrightMin
	hi := mathx.Max(m.cfg.BrightMax, lo)
	v := float32(lo) + m.smoothed*float32(hi-lo)
	return uint8(mathx.Clamp(v, float32(lo), float32(hi)))
}
