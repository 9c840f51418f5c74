// SPDX-License-Identifier: GPL-3.0-only

// Package als provides ambient light sources for the brightness controller.
package als

import (
	"errors"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// ErrNoReading is returned when a source has no usable reading yet.
var ErrNoReading = errors.New("no ambient light reading available")

// Static always reports the same value. With a constant lux every learned
// sample shares one lux coordinate and predictions depend on content luminance only.
type Static struct {
	lux uint64
}

var _ controller.AmbientLight = (*Static)(nil)

// NewStatic returns a source that always reports lux.
func NewStatic(lux uint64) *Static {
	return &Static{lux: lux}
}

// Get returns the configured value.
func (s *Static) Get() (uint64, error) {
	return s.lux, nil
}
