// SPDX-License-Identifier: GPL-3.0-only

// Package hid drives the brightness of Apple Studio Displays over USB HID
// feature reports.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo contains information about a HID device.
type DeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	Interface    int
}

// Device represents an interface for HID device operations.
// This interface allows for mocking in tests.
type Device interface {
	// GetFeatureReport reads a feature report from the device.
	// The first byte is the report ID.
	GetFeatureReport(data []byte) (int, error)

	// SendFeatureReport writes a feature report to the device.
	// The first byte is the report ID.
	SendFeatureReport(data []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info returns information about the device.
	Info() DeviceInfo
}
