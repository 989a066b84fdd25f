//go:build rp2040 || rp2350

package strconvx

// Number conversions for console and log output. Signatures match
// strconv so host builds can delegate straight through; these hand
// forms trade strconv's edge-case fidelity for flash size.

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

type syntaxError struct{}

func (syntaxError) Error() string { return "invalid syntax" }

// Atoi parses a signed decimal integer.
func Atoi(s string) (int, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, syntaxError{}
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, syntaxError{}
		}
		n = n*10 + int(c-'0')
		if n < 0 {
			return 0, syntaxError{}
		}
	}
	if neg {
		n = -n
	}
	return n, nil
}

func FormatInt(i int64, base int) string {
	if i < 0 {
		return "-" + FormatUint(uint64(-i), base)
	}
	return FormatUint(uint64(i), base)
}

func FormatUint(u uint64, base int) string {
	if base < 2 || base > len(digits) {
		base = 10
	}
	if u == 0 {
		return "0"
	}
	// 64 digits covers max uint64 in base 2.
	var buf [64]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = digits[u%uint64(base)]
		u /= uint64(base)
	}
	return string(buf[i:])
}

// FormatFloat renders f in plain decimal ('f') notation regardless of
// the requested format byte. Precision below zero defaults to 6.
func FormatFloat(f float64, _ byte, prec, _ int) string {
	if prec < 0 {
		prec = 6
	}
	neg := f < 0
	if neg {
		f = -f
	}
	whole := uint64(f)
	pow := 1.0
	for i := 0; i < prec; i++ {
		pow *= 10
	}
	frac := uint64((f-float64(whole))*pow + 0.5)
	if frac >= uint64(pow) && prec > 0 {
		// Rounding carried into the integer part.
		whole++
		frac = 0
	}

	s := FormatUint(whole, 10)
	if prec > 0 {
		fs := FormatUint(frac, 10)
		for len(fs) < prec {
			fs = "0" + fs
		}
		s += "." + fs
	}
	if neg {
		return "-" + s
	}
	return s
}
