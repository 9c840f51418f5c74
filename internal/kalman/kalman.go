// SPDX-License-Identifier: GPL-3.0-only

// Package kalman provides a scalar Kalman filter used to smooth noisy
// ambient light sensor readings.
package kalman

const (
	// DefaultProcessVariance is how much the true ambient light is expected to drift per sample.
	DefaultProcessVariance = 1.0

	// DefaultMeasurementVariance is the expected sensor noise.
	DefaultMeasurementVariance = 20.0

	// DefaultCovariance is the initial estimate uncertainty.
	DefaultCovariance = 10.0
)

// Filter is a one-dimensional Kalman filter modelling the signal as a random walk.
// It is not safe for concurrent use.
type Filter struct {
	q          float64
	r          float64
	covariance float64
	value      float64
	seeded     bool
}

// New creates a filter with the given process variance q, measurement
// variance r and initial covariance.
func New(q, r, covariance float64) *Filter {
	return &Filter{q: q, r: r, covariance: covariance}
}

// NewDefault creates a filter tuned for lux readings.
func NewDefault() *Filter {
	return New(DefaultProcessVariance, DefaultMeasurementVariance, DefaultCovariance)
}

// Process feeds a raw measurement into the filter and returns the new estimate.
// The first measurement seeds the estimate as-is.
func (f *Filter) Process(measurement float64) float64 {
	if !f.seeded {
		f.value = measurement
		f.seeded = true
		return f.value
	}

	// Predict: uncertainty grows by the process variance.
	p := f.covariance + f.q

	// Update: blend the measurement in proportionally to the gain.
	gain := p / (p + f.r)
	f.value += gain * (measurement - f.value)
	f.covariance = (1 - gain) * p

	return f.value
}

// Initialized reports whether at least one measurement has been processed.
func (f *Filter) Initialized() bool {
	return f.seeded
}

// Value returns the current estimate, or 0 before the first measurement.
func (f *Filter) Value() float64 {
	return f.value
}
