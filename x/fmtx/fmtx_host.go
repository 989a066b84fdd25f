//go:build !(rp2040 || rp2350)

package fmtx

import (
	"fmt"
	"io"
)

// Host builds delegate to fmt; the MCU half carries a small formatter
// with the same surface.

func Sprintf(format string, a ...any) string      { return fmt.Sprintf(format, a...) }
func Printf(format string, a ...any) (int, error) { return fmt.Printf(format, a...) }
func Errorf(format string, a ...any) error        { return fmt.Errorf(format, a...) }

func Fprintf(w io.Writer, format string, a ...any) (int, error) {
	return fmt.Fprintf(w, format, a...)
}
