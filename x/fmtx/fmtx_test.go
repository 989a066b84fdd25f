package fmtx

import (
	"bytes"
	"testing"
)

func TestSprintfVerbs(t *testing.T) {
	cases := []struct {
		format string
		args   []any
		want   string
	}{
		{"hello %s", []any{"world"}, "hello world"},
		{"num %d hex %x HEX %X", []any{255, 255, 255}, "num 255 hex ff HEX FF"},
		{"flags %t %t", []any{true, false}, "flags true false"},
		{"literal %%", nil, "literal %"},
		{"q=%q", []any{`a"b\c`}, `q="a\"b\\c"`},
		{"v=%v", []any{123}, "v=123"},
		{"trim %.3s", []any{"abcdef"}, "trim abc"},
		{"pad [%8s]", []any{"ab"}, "pad [      ab]"},
		{"level %.3f", []any{0.5}, "level 0.500"},
		{"missing %d", nil, "missing %!d(MISSING)"},
	}
	for _, c := range cases {
		if got := Sprintf(c.format, c.args...); got != c.want {
			t.Errorf("Sprintf(%q) = %q, want %q", c.format, got, c.want)
		}
	}
}

func TestFprintfWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Fprintf(&buf, "gpio%d: %s", 14, "led_in"); err != nil {
		t.Fatalf("Fprintf: %v", err)
	}
	if got, want := buf.String(), "gpio14: led_in"; got != want {
		t.Fatalf("Fprintf wrote %q, want %q", got, want)
	}
}

func TestErrorfMessage(t *testing.T) {
	err := Errorf("malformed reply: %v", 42)
	if err == nil {
		t.Fatal("Errorf returned nil")
	}
	if got, want := err.Error(), "malformed reply: 42"; got != want {
		t.Fatalf("Errorf = %q, want %q", got, want)
	}
}
