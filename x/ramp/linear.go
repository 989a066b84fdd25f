// Package ramp provides a linear per-sample gain ramp for click-free
// level transitions.
package ramp

// Gain moves a float32 gain linearly toward a target over a fixed number
// of samples. Callers drive it from the audio loop; it is not safe for
// concurrent use.
type Gain struct {
	cur    float32
	target float32
	step   float32
	steps  int
}

// NewGain returns a gain starting at initial that reaches any new target
// within steps samples.
func NewGain(initial float32, steps int) *Gain {
	if steps < 1 {
		steps = 1
	}
	return &Gain{cur: initial, target: initial, steps: steps}
}

// SetTarget aims the ramp at t. An in-flight move re-aims from the
// current value, so direction changes never jump.
func (g *Gain) SetTarget(t float32) {
	if t == g.target {
		return
	}
	g.target = t
	g.step = (t - g.cur) / float32(g.steps)
}

// Value reports the current gain without advancing.
func (g *Gain) Value() float32 { return g.cur }

// Settled reports whether the ramp reached its target.
func (g *Gain) Settled() bool { return g.cur == g.target }

// Next advances one sample and returns the gain to apply.
func (g *Gain) Next() float32 {
	if g.cur == g.target {
		return g.cur
	}
	g.cur += g.step
	if (g.step > 0 && g.cur >= g.target) || (g.step < 0 && g.cur <= g.target) {
		g.cur = g.target
	}
	return g.cur
}

// Apply scales buf in place, advancing the ramp one step per sample.
func (g *Gain) Apply(buf []float32) {
	if g.cur == g.target {
		if g.cur == 1 {
			return
		}
		for i := range buf {
			buf[i] *= g.cur
		}
		return
	}
	for i := range buf {
		buf[i] *= g.Next()
	}
}
