// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"strings"
	"syscall"
)

// IsDeviceGoneError reports whether err means the display was unplugged or
// its handle became unusable, so the device should be re-enumerated.
func IsDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisplayClosed) {
		return true
	}
	if errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) || errors.Is(err, syscall.ENXIO) {
		return true
	}

	// hidapi reports errors as plain strings.
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"no such device", "device not configured", "input/output error"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
