//go:build rp2040 || rp2350

package fmtx

import (
	"io"
	"unicode/utf8"

	"songbird-go/x/strconvx"
)

// DefaultOutput receives Printf output on MCU builds. The platform
// bootstrap points it at the CDC serial port.
var DefaultOutput io.Writer = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// The formatter is a small fmt subset that stays off the heap except
// for its output buffer. Verbs: %s %q %d %x %X %t %f %v %%, width and
// precision for %s, precision for %f. Unknown verbs echo literally so
// a bad format string is visible on the wire.

func Sprintf(format string, a ...any) string {
	var o out
	o.format(format, a)
	return string(o.buf)
}

func Printf(format string, a ...any) (int, error) {
	return io.WriteString(DefaultOutput, Sprintf(format, a...))
}

func Fprintf(w io.Writer, format string, a ...any) (int, error) {
	return io.WriteString(w, Sprintf(format, a...))
}

func Errorf(format string, a ...any) error {
	return &formatError{Sprintf(format, a...)}
}

type formatError struct{ s string }

func (e *formatError) Error() string { return e.s }

type out struct{ buf []byte }

func (o *out) byte(c byte)  { o.buf = append(o.buf, c) }
func (o *out) str(s string) { o.buf = append(o.buf, s...) }

func (o *out) format(format string, args []any) {
	next := 0
	for i := 0; i < len(format); {
		if format[i] != '%' {
			o.byte(format[i])
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			o.byte('%')
			i += 2
			continue
		}
		i++

		width, prec, hasPrec := 0, 0, false
		i = number(format, i, &width)
		if i < len(format) && format[i] == '.' {
			hasPrec = true
			i = number(format, i+1, &prec)
		}
		if i >= len(format) {
			return
		}
		verb := format[i]
		i++
		if next >= len(args) {
			o.str("%!")
			o.byte(verb)
			o.str("(MISSING)")
			continue
		}
		arg := args[next]
		next++

		switch verb {
		case 's', 'q':
			s, ok := argString(arg)
			if !ok {
				o.value(arg)
				continue
			}
			if verb == 'q' {
				s = quote(s)
			}
			if hasPrec && prec < len(s) {
				s = s[:prec]
			}
			for pad := width - utf8.RuneCountInString(s); pad > 0; pad-- {
				o.byte(' ')
			}
			o.str(s)
		case 'd':
			o.integer(arg, 10, false)
		case 'x':
			o.integer(arg, 16, false)
		case 'X':
			o.integer(arg, 16, true)
		case 't':
			b, _ := arg.(bool)
			o.bool(b)
		case 'f':
			p := 6
			if hasPrec {
				p = prec
			}
			o.float(arg, p)
		case 'v':
			o.value(arg)
		default:
			o.byte('%')
			o.byte(verb)
		}
	}
}

// number parses an optional decimal run starting at i.
func number(s string, i int, dst *int) int {
	n, start := 0, i
	for i < len(s) && '0' <= s[i] && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i > start {
		*dst = n
	}
	return i
}

func argString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func (o *out) bool(v bool) {
	if v {
		o.str("true")
	} else {
		o.str("false")
	}
}

func (o *out) integer(v any, base int, upper bool) {
	s, ok := formatInteger(v, base)
	if !ok {
		o.value(v)
		return
	}
	if upper {
		s = upperHex(s)
	}
	o.str(s)
}

func formatInteger(v any, base int) (string, bool) {
	switch x := v.(type) {
	case int:
		return strconvx.FormatInt(int64(x), base), true
	case int8:
		return strconvx.FormatInt(int64(x), base), true
	case int16:
		return strconvx.FormatInt(int64(x), base), true
	case int32:
		return strconvx.FormatInt(int64(x), base), true
	case int64:
		return strconvx.FormatInt(x, base), true
	case uint:
		return strconvx.FormatUint(uint64(x), base), true
	case uint8:
		return strconvx.FormatUint(uint64(x), base), true
	case uint16:
		return strconvx.FormatUint(uint64(x), base), true
	case uint32:
		return strconvx.FormatUint(uint64(x), base), true
	case uint64:
		return strconvx.FormatUint(x, base), true
	}
	return "", false
}

func (o *out) float(v any, prec int) {
	switch x := v.(type) {
	case float32:
		o.str(strconvx.FormatFloat(float64(x), 'f', prec, 32))
	case float64:
		o.str(strconvx.FormatFloat(x, 'f', prec, 64))
	default:
		o.value(v)
	}
}

// value renders %v. Bus payloads put ints, bools, strings and errors
// through here; anything with a String method gets that.
func (o *out) value(v any) {
	switch x := v.(type) {
	case string:
		o.str(x)
	case []byte:
		o.str(string(x))
	case bool:
		o.bool(x)
	case float32:
		o.str(strconvx.FormatFloat(float64(x), 'f', 3, 32))
	case float64:
		o.str(strconvx.FormatFloat(x, 'f', 3, 64))
	case error:
		o.str(x.Error())
	case interface{ String() string }:
		o.str(x.String())
	default:
		if s, ok := formatInteger(x, 10); ok {
			o.str(s)
		} else {
			o.str("<?>")
		}
	}
}

func upperHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func quote(s string) string {
	q := make([]byte, 0, len(s)+2)
	q = append(q, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			q = append(q, '\\', c)
		case '\n':
			q = append(q, '\\', 'n')
		case '\r':
			q = append(q, '\\', 'r')
		case '\t':
			q = append(q, '\\', 't')
		default:
			q = append(q, c)
		}
	}
	return string(append(q, '"'))
}
