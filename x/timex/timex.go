package timex

import "time"

// NowMs is the wall clock in Unix milliseconds, the timestamp unit
// carried on the bus.
func NowMs() int64 { return time.Now().UnixMilli() }

// PeriodFromHz converts a frequency to its period in nanoseconds, the
// unit PWM configuration wants. Zero frequency is coerced to 1 Hz.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(time.Second) / uint64(freqHz)
}
