package trading

// The venue contract takes market ids and close percentages as uint16 and
// slot indexes as uint8. Inputs arrive from clients as loosely validated
// integers (or not at all), so encoding is total: absent values take a
// per-field default and out-of-range values clamp to the domain boundary.
// Clamping is the documented policy — never rounding, never wrap-around.
// The clamped flag lets callers log when an input was coerced.

const (
	maxU16 = 65535
	maxU8  = 255

	defaultPercentage = 100
)

// EncodeU16 clamps v into [0, 65535]. A nil input encodes as 0.
func EncodeU16(v *int) (uint16, bool) {
	if v == nil {
		return 0, false
	}
	switch {
	case *v < 0:
		return 0, true
	case *v > maxU16:
		return maxU16, true
	}
	return uint16(*v), false
}

// EncodeU8 clamps v into [0, 255]. A nil input encodes as 0.
func EncodeU8(v *int) (uint8, bool) {
	if v == nil {
		return 0, false
	}
	switch {
	case *v < 0:
		return 0, true
	case *v > maxU8:
		return maxU8, true
	}
	return uint8(*v), false
}

// EncodePercentage clamps a close percentage into [0, 65535]. A nil input
// encodes as the full-close default of 100.
func EncodePercentage(v *int) (uint16, bool) {
	if v == nil {
		return defaultPercentage, false
	}
	return EncodeU16(v)
}
