// SPDX-License-Identifier: GPL-3.0-only

// Package backlight controls laptop panels through /sys/class/backlight.
package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/brightness"
	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// DefaultRoot is where the kernel exposes backlight devices.
const DefaultRoot = "/sys/class/backlight"

// Writer sets the brightness of a backlight device on behalf of the daemon.
type Writer interface {
	SetBrightness(subsystem, name string, value uint32) error
}

// Device is a backlight device. Reads go through sysfs; writes go through
// sysfs when the brightness attribute is writable, otherwise through a Writer.
type Device struct {
	name     string
	dir      string
	maxValue uint64

	mu     sync.Mutex
	writer Writer
}

var _ controller.Brightness = (*Device)(nil)

// Option configures a Device.
type Option func(*Device)

// WithWriter sets the fallback used when sysfs is read-only for the daemon.
func WithWriter(w Writer) Option {
	return func(d *Device) {
		d.writer = w
	}
}

// Open opens the backlight device in dir, e.g. /sys/class/backlight/intel_backlight.
func Open(dir string, opts ...Option) (*Device, error) {
	maxValue, err := readUint(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, err
	}
	if maxValue == 0 {
		return nil, fmt.Errorf("backlight %s reports zero max_brightness", dir)
	}

	d := &Device{name: filepath.Base(dir), dir: dir, maxValue: maxValue}
	for _, opt := range opts {
		opt(d)
	}

	if d.writer != nil && sysfsWritable(filepath.Join(dir, "brightness")) {
		d.writer = nil
	}

	log.Debug().
		Str("device", d.name).
		Uint64("max", maxValue).
		Bool("logind", d.writer != nil).
		Msg("Opened backlight")

	return d, nil
}

// Discover returns the directories of all backlight devices under root.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlight devices: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// Name returns the kernel name of the device.
func (d *Device) Name() string {
	return d.name
}

// Range returns the values the device accepts.
func (d *Device) Range() brightness.Range {
	return brightness.Range{Min: 0, Max: d.maxValue}
}

// Get returns the current brightness. actual_brightness is preferred since
// brightness may hold the last requested rather than the applied value.
func (d *Device) Get() (uint64, error) {
	value, err := readUint(filepath.Join(d.dir, "actual_brightness"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		value, err = readUint(filepath.Join(d.dir, "brightness"))
		if err != nil {
			return 0, err
		}
	}
	return value, nil
}

// Set writes a new brightness, clamped to the device range.
func (d *Device) Set(value uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	value = d.Range().Clamp(value)

	if d.writer != nil {
		// #nosec G115 -- value is clamped to max_brightness, which the kernel stores as int
		return d.writer.SetBrightness("backlight", d.name, uint32(value))
	}

	path := filepath.Join(d.dir, "brightness")
	if err := os.WriteFile(path, []byte(strconv.FormatUint(value, 10)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return value, nil
}

func sysfsWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
