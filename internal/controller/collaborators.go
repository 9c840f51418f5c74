// SPDX-License-Identifier: GPL-3.0-only

package controller

//go:generate mockgen -source=collaborators.go -destination=mocks/collaborators_mock.go -package=mocks

// AmbientLight is a source of raw ambient light readings in sensor-native units.
type AmbientLight interface {
	// Get returns the current raw reading.
	Get() (uint64, error)
}

// Brightness is a display brightness actuator working in device-native units.
type Brightness interface {
	// Get returns the current brightness.
	Get() (uint64, error)

	// Set applies a brightness.
	Set(value uint64) error
}

// Persistence loads and saves the learned samples of one output.
type Persistence interface {
	// Load returns the previously saved samples.
	Load() ([]Sample, error)

	// Save replaces the stored samples.
	Save(samples []Sample) error
}
