// SPDX-License-Identifier: GPL-3.0-only

package controller

import "fmt"

// SensorError is returned by Adjust when the ambient light reading fails.
// The cycle is skipped and nothing else changes.
type SensorError struct {
	Err error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("failed to read ambient light: %v", e.Err)
}

func (e *SensorError) Unwrap() error {
	return e.Err
}

// DeviceError is returned when the brightness device cannot be read or written.
// Whether it terminates the daemon is up to the caller.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("failed to %s brightness: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// PersistError is returned when a learned sample could not be saved.
// The sample is kept in memory, but callers running in persistent mode
// treat this as fatal.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to save learned samples: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
