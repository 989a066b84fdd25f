package mathx

// LerpU16 interpolates from a to b with t as a Q16 fraction: t == 0
// gives a, t == 65535 gives b. Intermediates are 32-bit so the multiply
// never overflows.
func LerpU16(a, b, t uint16) uint16 {
	d := int32(b) - int32(a)
	v := int32(a) + (d*int32(t))/65535
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
