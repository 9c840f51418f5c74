// SPDX-License-Identifier: GPL-3.0-only

// Package brightness converts between device-native brightness values and
// user-facing percentages.
package brightness

import "math"

// Range is the inclusive span of brightness values a device accepts.
type Range struct {
	Min uint64
	Max uint64
}

// StudioDisplay is the brightness range of the Apple Studio Display, in nits.
var StudioDisplay = Range{Min: 400, Max: 60000}

// Span returns the distance between the maximum and minimum value.
func (r Range) Span() uint64 {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min
}

// Clamp ensures value is within the range.
func (r Range) Clamp(value uint64) uint64 {
	if value < r.Min {
		return r.Min
	}
	if value > r.Max {
		return r.Max
	}
	return value
}

// ToPercent converts a device value to a percentage (0-100).
// Values outside the range are clamped before conversion.
// Uses rounding to ensure round-trip consistency with FromPercent.
func (r Range) ToPercent(value uint64) uint8 {
	span := r.Span()
	if span == 0 {
		return 0
	}
	value = r.Clamp(value)
	percent := float64(value-r.Min) / float64(span) * 100
	return uint8(math.Round(percent))
}

// FromPercent converts a percentage (0-100) to a device value.
// Percentages above 100 are treated as 100%.
func (r Range) FromPercent(percent uint8) uint64 {
	if percent > 100 {
		percent = 100
	}
	value := uint64(math.Round(float64(percent)*float64(r.Span())/100)) + r.Min
	return r.Clamp(value)
}
