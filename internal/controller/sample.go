// SPDX-License-Identifier: GPL-3.0-only

package controller

import "strconv"

// Luminance is an optional 0-100 content luminance percentage.
// The zero value is the absent luminance.
type Luminance struct {
	value   uint8
	present bool
}

// NoLuminance is reported when no content luminance source is configured.
var NoLuminance = Luminance{}

// Luma returns a present luminance. Values above 100 are clamped.
func Luma(percent uint8) Luminance {
	if percent > 100 {
		percent = 100
	}
	return Luminance{value: percent, present: true}
}

// Get returns the luminance and whether it is present.
func (l Luminance) Get() (uint8, bool) {
	return l.value, l.present
}

// Present reports whether a luminance value is available.
func (l Luminance) Present() bool {
	return l.present
}

// String implements fmt.Stringer.
func (l Luminance) String() string {
	if !l.present {
		return "none"
	}
	return strconv.Itoa(int(l.value)) + "%"
}

// coordinate is the value used on the luminance axis of the distance metric.
// Absent luminance sits at the origin there, and only there.
func (l Luminance) coordinate() float64 {
	if !l.present {
		return 0
	}
	return float64(l.value)
}

// relation is the position of one condition relative to another on a single axis.
type relation int

const (
	darker relation = iota - 1
	same
	brighter
)

func compareLux(a, b uint64) relation {
	switch {
	case a < b:
		return darker
	case a > b:
		return brighter
	default:
		return same
	}
}

// compareLuminance orders two luminance values. Absent is darker than any
// present value and equal only to absent.
func compareLuminance(a, b Luminance) relation {
	switch {
	case !a.present && b.present:
		return darker
	case a.present && !b.present:
		return brighter
	case a.value < b.value:
		return darker
	case a.value > b.value:
		return brighter
	default:
		return same
	}
}

// Sample is one learned data point: the brightness the user settled on under
// a given ambient light and content luminance.
type Sample struct {
	Lux        uint64
	Luminance  Luminance
	Brightness uint64
}

// NewSample is a convenience constructor.
func NewSample(lux uint64, luma Luminance, brightness uint64) Sample {
	return Sample{Lux: lux, Luminance: luma, Brightness: brightness}
}
