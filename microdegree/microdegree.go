// Package microdegree decodes the fixed-point angles used by RAP grid
// definitions, stored as integer multiples of 1e-6 degree.
package microdegree

import "fmt"

// PerDegree is the number of fixed-point units in one degree.
const PerDegree = 1_000_000

// Angle is an angle in units of 1e-6 degree.
//
// Grid walking is done on Angle values rather than on floats so that adding
// the cell size a few thousand times does not drift.
type Angle int64

// Degrees returns the angle in degrees.
func (a Angle) Degrees() float64 {
	return float64(a) / PerDegree
}

// String returns the angle in degrees with full precision.
func (a Angle) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/PerDegree, v%PerDegree)
}

// FromRaw returns the angle stored in an unsigned 32-bit file field.
func FromRaw(raw uint32) Angle {
	return Angle(raw)
}
