package source

import "math"

// NewTone returns an endless mono sine source for running the loopback
// without a capture file. amp is linear in [0,1].
func NewTone(freqHz float64, sampleRate int, amp float64) Source {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &tone{
		rate: sampleRate,
		amp:  float32(amp),
		step: 2 * math.Pi * freqHz / float64(sampleRate),
	}
}

type tone struct {
	rate  int
	amp   float32
	step  float64
	phase float64
}

func (t *tone) SampleRate() int { return t.rate }
func (t *tone) Channels() int   { return 1 }
func (t *tone) Close() error    { return nil }

func (t *tone) ReadSamples(dst []float32) (int, error) {
	for i := range dst {
		dst[i] = t.amp * float32(math.Sin(t.phase))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return len(dst), nil
}
