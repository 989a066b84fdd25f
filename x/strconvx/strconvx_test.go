package strconvx

import "testing"

func TestAtoiRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 64, -30, 48000, -99999} {
		s := FormatInt(v, 10)
		got, err := Atoi(s)
		if err != nil {
			t.Fatalf("Atoi(%q): %v", s, err)
		}
		if int64(got) != v {
			t.Fatalf("Atoi(%q) = %d, want %d", s, got, v)
		}
	}
}

func TestAtoiRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "-", "x", "1.5", "0x10", "1 2", "--3"} {
		if _, err := Atoi(s); err == nil {
			t.Fatalf("Atoi(%q) accepted", s)
		}
	}
}

func TestFormatUintBases(t *testing.T) {
	cases := []struct {
		u    uint64
		base int
		want string
	}{
		{0, 10, "0"},
		{255, 10, "255"},
		{255, 16, "ff"},
		{5, 2, "101"},
		{35, 36, "z"},
	}
	for _, c := range cases {
		if got := FormatUint(c.u, c.base); got != c.want {
			t.Fatalf("FormatUint(%d, %d) = %q, want %q", c.u, c.base, got, c.want)
		}
	}
}

func TestFormatIntNegative(t *testing.T) {
	if got := FormatInt(-15, 10); got != "-15" {
		t.Fatalf("FormatInt(-15, 10) = %q", got)
	}
	if got := FormatInt(-255, 16); got != "-ff" {
		t.Fatalf("FormatInt(-255, 16) = %q", got)
	}
}

func TestFormatFloatDecimal(t *testing.T) {
	cases := []struct {
		f    float64
		prec int
		want string
	}{
		{0, 0, "0"},
		{0.5, 3, "0.500"},
		{12.345, 2, "12.35"},
		{-1.25, 2, "-1.25"},
		// Rounding that carries into the integer part.
		{0.9996, 3, "1.000"},
	}
	for _, c := range cases {
		if got := FormatFloat(c.f, 'f', c.prec, 64); got != c.want {
			t.Fatalf("FormatFloat(%v, 'f', %d) = %q, want %q", c.f, c.prec, got, c.want)
		}
	}
}
