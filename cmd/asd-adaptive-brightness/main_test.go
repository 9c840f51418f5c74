// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/asd-adaptive-brightness/internal/als"
	"github.com/shini4i/asd-adaptive-brightness/internal/config"
	"github.com/shini4i/asd-adaptive-brightness/internal/hid"
	"github.com/shini4i/asd-adaptive-brightness/internal/luma"
	"github.com/shini4i/asd-adaptive-brightness/internal/output"
	"github.com/shini4i/asd-adaptive-brightness/internal/udev"
)

// mockDevice is a minimal hid.Device for testing.
type mockDevice struct {
	serial string
}

func (m *mockDevice) GetFeatureReport(data []byte) (int, error) {
	binary.LittleEndian.PutUint32(data[1:5], 30200)
	return hid.ReportSize, nil
}

func (m *mockDevice) SendFeatureReport(data []byte) (int, error) {
	return hid.ReportSize, nil
}

func (m *mockDevice) Close() error {
	return nil
}

func (m *mockDevice) Info() hid.DeviceInfo {
	return hid.DeviceInfo{Serial: m.serial, Product: "Studio Display"}
}

func withoutDelays(t *testing.T) {
	t.Helper()
	settle, backoff := settleDelay, retryBackoff
	settleDelay, retryBackoff = 0, 0
	t.Cleanup(func() {
		settleDelay, retryBackoff = settle, backoff
	})
}

// writeBacklight creates a fake /sys/class/backlight/<name> directory.
func writeBacklight(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for file, value := range map[string]string{
		"max_brightness":    "1000\n",
		"brightness":        "500\n",
		"actual_brightness": "500\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(value), 0o644))
	}
}

// displays is a switchable set of connected Studio Displays.
type displays struct {
	mu      sync.Mutex
	serials []string
	err     error
}

func (d *displays) set(serials ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serials = serials
}

func (d *displays) enumerate() ([]hid.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	infos := make([]hid.DeviceInfo, 0, len(d.serials))
	for _, serial := range d.serials {
		infos = append(infos, hid.DeviceInfo{Serial: serial, Product: "Studio Display"})
	}
	return infos, nil
}

func newTestSupervisor(t *testing.T, connected *displays) *output.Supervisor {
	t.Helper()
	manager := hid.NewManager(
		hid.WithEnumerator(connected.enumerate),
		hid.WithOpener(func(serial string) (hid.Device, error) {
			return &mockDevice{serial: serial}, nil
		}),
	)

	supervisor := output.NewSupervisor(output.Config{Interval: time.Hour}, als.NewStatic(100), luma.None{},
		output.WithDisplays(manager))

	ctx, cancel := context.WithCancel(context.Background())
	supervisor.Start(ctx)
	t.Cleanup(func() {
		cancel()
		supervisor.Stop()
		_ = manager.Close()
	})
	return supervisor
}

func names(infos []output.Info) []string {
	result := make([]string, len(infos))
	for i, info := range infos {
		result[i] = info.Name
	}
	return result
}

func TestBacklightSource_Names(t *testing.T) {
	root := t.TempDir()
	writeBacklight(t, root, "intel_backlight")
	writeBacklight(t, root, "acpi_video0")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not_a_backlight"), 0o755))

	tests := []struct {
		name     string
		allowed  []string
		expected []string
	}{
		{name: "all backlights by default", allowed: nil, expected: []string{"acpi_video0", "intel_backlight"}},
		{name: "configured subset", allowed: []string{"intel_backlight"}, expected: []string{"intel_backlight"}},
		{name: "configured but absent", allowed: []string{"amdgpu_bl0"}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newBacklightSource(root, tt.allowed, nil)

			found, err := source.Names()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, found)
		})
	}
}

func TestBacklightSource_Open(t *testing.T) {
	root := t.TempDir()
	writeBacklight(t, root, "intel_backlight")
	source := newBacklightSource(root, nil, nil)

	out, err := source.Open("intel_backlight")
	require.NoError(t, err)
	assert.Equal(t, "intel_backlight", out.Name)
	assert.Equal(t, output.KindBacklight, out.Kind)

	value, err := out.Device.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), value)
	assert.Equal(t, uint64(1000), out.Device.Range().Max)

	_, err = source.Open("missing")
	assert.Error(t, err)
}

func TestStartOutputs(t *testing.T) {
	root := t.TempDir()
	writeBacklight(t, root, "intel_backlight")
	connected := &displays{}
	connected.set("ABC123", "DEF456")
	supervisor := newTestSupervisor(t, connected)

	startOutputs(supervisor, newBacklightSource(root, nil, nil))

	assert.Equal(t, []string{"ABC123", "DEF456", "intel_backlight"}, names(supervisor.List()))
}

func TestStartOutputs_ToleratesMissingHardware(t *testing.T) {
	connected := &displays{err: errors.New("hidapi unavailable")}
	supervisor := newTestSupervisor(t, connected)

	assert.NotPanics(t, func() {
		startOutputs(supervisor, newBacklightSource(filepath.Join(t.TempDir(), "absent"), nil, nil))
	})
	assert.Empty(t, supervisor.List())
}

func TestHotplugHandler_Backlight(t *testing.T) {
	withoutDelays(t)
	root := t.TempDir()
	writeBacklight(t, root, "intel_backlight")
	writeBacklight(t, root, "acpi_video0")
	supervisor := newTestSupervisor(t, &displays{})
	handler := createHotplugHandler(supervisor, newBacklightSource(root, []string{"intel_backlight"}, nil))

	handler(udev.Event{Type: udev.EventAdd, Subsystem: udev.SubsystemBacklight, Name: "intel_backlight"})
	handler(udev.Event{Type: udev.EventAdd, Subsystem: udev.SubsystemBacklight, Name: "acpi_video0"})
	assert.Equal(t, []string{"intel_backlight"}, names(supervisor.List()), "unconfigured backlights are ignored")

	// A repeated add is a no-op.
	handler(udev.Event{Type: udev.EventAdd, Subsystem: udev.SubsystemBacklight, Name: "intel_backlight"})
	assert.Len(t, supervisor.List(), 1)

	handler(udev.Event{Type: udev.EventRemove, Subsystem: udev.SubsystemBacklight, Name: "intel_backlight"})
	assert.Empty(t, supervisor.List())
}

func TestHotplugHandler_StudioDisplay(t *testing.T) {
	withoutDelays(t)
	connected := &displays{}
	supervisor := newTestSupervisor(t, connected)
	handler := createHotplugHandler(supervisor, newBacklightSource(t.TempDir(), nil, nil))

	connected.set("ABC123")
	handler(udev.Event{Type: udev.EventAdd, Subsystem: udev.SubsystemUSB, Name: "5ac/1114/151"})
	assert.Equal(t, []string{"ABC123"}, names(supervisor.List()))

	connected.set()
	handler(udev.Event{Type: udev.EventRemove, Subsystem: udev.SubsystemUSB, Name: "5ac/1114/151"})
	assert.Empty(t, supervisor.List())
}

func TestRecoveryHandler_ReconcilesOutputs(t *testing.T) {
	withoutDelays(t)
	root := t.TempDir()
	writeBacklight(t, root, "intel_backlight")
	writeBacklight(t, root, "acpi_video0")
	connected := &displays{}
	connected.set("ABC123")
	supervisor := newTestSupervisor(t, connected)
	source := newBacklightSource(root, nil, nil)
	startOutputs(supervisor, source)
	require.Len(t, supervisor.List(), 3)

	// Events were missed: one backlight vanished, the display was swapped.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "acpi_video0")))
	connected.set("DEF456")

	createRecoveryHandler(supervisor, source)()

	assert.Equal(t, []string{"DEF456", "intel_backlight"}, names(supervisor.List()))
}

// flakyRegistry fails a fixed number of refreshes before succeeding.
type flakyRegistry struct {
	failures int
	calls    int
}

func (r *flakyRegistry) Add(output.Output) error { return nil }
func (r *flakyRegistry) Remove(string) bool { return false }
func (r *flakyRegistry) Get(string) (output.Output, bool) { return output.Output{}, false }
func (r *flakyRegistry) List() []output.Info { return nil }

func (r *flakyRegistry) Refresh() (output.Changes, error) {
	r.calls++
	if r.calls <= r.failures {
		return output.Changes{}, errors.New("enumeration failed")
	}
	return output.Changes{Added: []output.Info{{Name: "ABC123"}}}, nil
}

func TestRefreshOutputsWithRetry(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		expectErr     bool
		expectedCalls int
	}{
		{name: "success on first attempt", failures: 0, expectErr: false, expectedCalls: 1},
		{name: "success after retries", failures: 2, expectErr: false, expectedCalls: 3},
		{name: "all retries exhausted", failures: 10, expectErr: true, expectedCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withoutDelays(t)
			registry := &flakyRegistry{failures: tt.failures}

			changes, err := refreshOutputsWithRetry(registry, maxRefreshRetries)

			assert.Equal(t, tt.expectedCalls, registry.calls)
			if tt.expectErr {
				require.Error(t, err)
				assert.Empty(t, changes.Added)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []output.Info{{Name: "ABC123"}}, changes.Added)
		})
	}
}

func TestNewAmbientLight(t *testing.T) {
	iioDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(iioDir, "in_illuminance_raw"), []byte("42\n"), 0o644))

	tests := []struct {
		name      string
		cfg       config.ALS
		expectErr bool
		expected  uint64
	}{
		{name: "static", cfg: config.ALS{Type: config.ALSStatic, Lux: 250}, expected: 250},
		{name: "iio with explicit path", cfg: config.ALS{Type: config.ALSIIO, Path: iioDir}, expected: 42},
		{name: "iio without channel", cfg: config.ALS{Type: config.ALSIIO, Path: t.TempDir()}, expectErr: true},
		{name: "time without thresholds", cfg: config.ALS{Type: config.ALSTime}, expectErr: true},
		{name: "unknown type", cfg: config.ALS{Type: "camera"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor, closeFn, err := newAmbientLight(tt.cfg)
			require.NotNil(t, closeFn)
			defer closeFn()

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			lux, err := sensor.Get()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lux)
		})
	}
}

func TestNewAmbientLight_Time(t *testing.T) {
	sensor, closeFn, err := newAmbientLight(config.ALS{Type: config.ALSTime, Thresholds: map[uint8]uint64{0: 7}})
	require.NoError(t, err)
	defer closeFn()

	lux, err := sensor.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), lux)
}

func TestNewLumaSource(t *testing.T) {
	assert.IsType(t, luma.None{}, newLumaSource(config.Luma{Type: config.LumaNone}))
	assert.IsType(t, &luma.File{}, newLumaSource(config.Luma{Type: config.LumaFile, Path: "/tmp/screen.png"}))
}
