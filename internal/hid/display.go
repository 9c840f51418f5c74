// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/shini4i/asd-adaptive-brightness/internal/brightness"
	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

const (
	// ReportID is the HID report ID for brightness control.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7

	// AppleVendorID is the USB vendor ID for Apple.
	AppleVendorID uint16 = 0x05ac

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface number for brightness control.
	BrightnessInterface = 0x07
)

// ErrDisplayClosed is returned when an operation is attempted on a closed display.
var ErrDisplayClosed = errors.New("display is closed")

// Display represents an Apple Studio Display with brightness control capabilities.
// Brightness is exchanged in nits, the unit of the feature report.
// All methods are thread-safe and can be called concurrently.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

var _ controller.Brightness = (*Display)(nil)

// NewDisplay creates a new Display instance wrapping the given HID device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// Range returns the brightness range of the display in nits.
func (d *Display) Range() brightness.Range {
	return brightness.StudioDisplay
}

// Get reads the current brightness in nits.
func (d *Display) Get() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID

	_, err := d.device.GetFeatureReport(data)
	if err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	// Parse brightness value from little-endian bytes
	return uint64(binary.LittleEndian.Uint32(data[1:5])), nil
}

// Set writes a brightness in nits, clamped to the display range.
func (d *Display) Set(nits uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	nits = brightness.StudioDisplay.Clamp(nits)

	data := make([]byte, ReportSize)
	data[0] = ReportID
	// #nosec G115 -- nits is clamped to 60000, safe for uint32
	binary.LittleEndian.PutUint32(data[1:5], uint32(nits))

	_, err := d.device.SendFeatureReport(data)
	if err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}

	return nil
}

// GetPercent returns the current brightness as a percentage (0-100).
func (d *Display) GetPercent() (uint8, error) {
	nits, err := d.Get()
	if err != nil {
		return 0, err
	}
	return d.Range().ToPercent(nits), nil
}

// SetPercent sets the brightness to a percentage (0-100).
func (d *Display) SetPercent(percent uint8) error {
	return d.Set(d.Range().FromPercent(percent))
}

// Serial returns the serial number of the display.
// This method does not require locking as device info is immutable.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// ProductName returns the product name of the display.
// This method does not require locking as device info is immutable.
func (d *Display) ProductName() string {
	return d.device.Info().Product
}

// Close closes the underlying HID device.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil // Already closed
	}

	d.closed = true
	return d.device.Close()
}
