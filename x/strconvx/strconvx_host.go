//go:build !(rp2040 || rp2350)

package strconvx

import "strconv"

// Host builds delegate to strconv; the MCU half carries small hand
// forms of the same signatures.

func Atoi(s string) (int, error)           { return strconv.Atoi(s) }
func FormatInt(i int64, base int) string   { return strconv.FormatInt(i, base) }
func FormatUint(u uint64, base int) string { return strconv.FormatUint(u, base) }

func FormatFloat(f float64, fmt byte, prec, bitSize int) string {
	return strconv.FormatFloat(f, fmt, prec, bitSize)
}
