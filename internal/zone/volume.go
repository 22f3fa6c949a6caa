package zone

// Bounds is an inclusive volume range.
type Bounds struct {
	Min int
	Max int
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RelativeGain carries the coordinator's offset from its reference volume
// over to a joining zone, clamped to the joining zone's bounds.
func RelativeGain(coordinatorVolume, coordinatorRef, selfRef int, self Bounds) int {
	return Clamp(coordinatorVolume-coordinatorRef+selfRef, self.Min, self.Max)
}

// PropagateDelta shifts a member volume by the coordinator's change.
func PropagateDelta(delta, memberVolume int, member Bounds) int {
	return Clamp(memberVolume+delta, member.Min, member.Max)
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
