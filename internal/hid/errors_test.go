// SPDX-License-Identifier: GPL-3.0-only

package hid_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shini4i/asd-adaptive-brightness/internal/hid"
)

func TestIsDeviceGoneError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "ENODEV", err: syscall.ENODEV, expected: true},
		{name: "wrapped EIO", err: fmt.Errorf("failed to get feature report: %w", syscall.EIO), expected: true},
		{name: "ENXIO", err: syscall.ENXIO, expected: true},
		{name: "closed display", err: hid.ErrDisplayClosed, expected: true},
		{name: "hidapi message", err: errors.New("hidapi: No such device"), expected: true},
		{name: "hidapi io message", err: errors.New("Input/output error"), expected: true},
		{name: "timeout", err: syscall.ETIMEDOUT, expected: false},
		{name: "unrelated", err: errors.New("permission denied"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hid.IsDeviceGoneError(tt.err))
		})
	}
}
