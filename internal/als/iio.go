// SPDX-License-Identifier: GPL-3.0-only

package als

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// DefaultIIORoot is where the kernel exposes industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// channels are the illuminance attributes in order of preference.
var channels = []string{
	"in_illuminance_raw",
	"in_illuminance_input",
	"in_intensity_both_raw",
}

// IIO reads an ambient light sensor through the kernel IIO sysfs interface.
type IIO struct {
	dir     string
	channel string
	scale   float64
	offset  float64
}

var _ controller.AmbientLight = (*IIO)(nil)

// NewIIO opens the IIO device in dir. It fails if the device exposes no
// illuminance channel.
func NewIIO(dir string) (*IIO, error) {
	channel, ok := findChannel(dir)
	if !ok {
		return nil, fmt.Errorf("no illuminance channel in %s", dir)
	}

	prefix := strings.TrimSuffix(strings.TrimSuffix(channel, "_raw"), "_input")
	scale, err := readOptionalFloat(filepath.Join(dir, prefix+"_scale"), 1)
	if err != nil {
		return nil, err
	}
	offset, err := readOptionalFloat(filepath.Join(dir, prefix+"_offset"), 0)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("device", dir).
		Str("channel", channel).
		Float64("scale", scale).
		Float64("offset", offset).
		Msg("Using IIO ambient light sensor")

	return &IIO{dir: dir, channel: channel, scale: scale, offset: offset}, nil
}

// DiscoverIIO returns the first device under root that exposes an
// illuminance channel.
func DiscoverIIO(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("failed to list IIO devices: %w", err)
	}

	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if _, ok := findChannel(dir); ok {
			return dir, nil
		}
	}

	return "", fmt.Errorf("no IIO ambient light sensor found in %s", root)
}

// Get returns the current illuminance in lux.
func (s *IIO) Get() (uint64, error) {
	raw, err := readFloat(filepath.Join(s.dir, s.channel))
	if err != nil {
		return 0, err
	}

	lux := (raw + s.offset) * s.scale
	if lux < 0 || math.IsNaN(lux) {
		return 0, nil
	}
	return uint64(math.Round(lux)), nil
}

func findChannel(dir string) (string, bool) {
	for _, channel := range channels {
		if _, err := os.Stat(filepath.Join(dir, channel)); err == nil {
			return channel, true
		}
	}
	return "", false
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return value, nil
}

func readOptionalFloat(path string, fallback float64) (float64, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fallback, nil
	}
	return readFloat(path)
}
