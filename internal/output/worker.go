// SPDX-License-Identifier: GPL-3.0-only

package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/hid"
	"github.com/shini4i/asd-adaptive-brightness/internal/luma"
)

// ErrDeviceGone is returned by Worker.Run when the output's device
// disappeared and the output has to be re-enumerated.
var ErrDeviceGone = errors.New("brightness device is gone")

// Error kinds reported to the Observer.
const (
	errorKindSensor  = "sensor"
	errorKindDevice  = "device"
	errorKindPersist = "persist"
)

// Worker drives the controller of a single output. Exactly one goroutine may
// call Run; Status may be called from any goroutine.
type Worker struct {
	output      Output
	ctrl        *controller.Controller
	luma        luma.Source
	interval    time.Duration
	fatalDevice bool
	observer    Observer
	logger      zerolog.Logger

	mu     sync.RWMutex
	status controller.Status
}

// Run senses every interval until ctx is cancelled, returning nil, or until
// an error that must stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("Control loop started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Control loop stopped")
			return nil
		case <-ticker.C:
			if err := w.tick(); err != nil {
				return err
			}
		}
	}
}

// Status returns the controller state after the last cycle.
func (w *Worker) Status() controller.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// tick runs one cycle and returns an error only if the loop must stop.
func (w *Worker) tick() error {
	err := w.ctrl.Adjust(w.luma.Luminance())
	w.publish()
	if err == nil {
		return nil
	}

	var (
		sensorErr  *controller.SensorError
		deviceErr  *controller.DeviceError
		persistErr *controller.PersistError
	)
	switch {
	case errors.As(err, &sensorErr):
		w.observer.ObserveError(w.output.Name, errorKindSensor)
		w.logger.Warn().Err(err).Msg("Skipping cycle")
		return nil

	case errors.As(err, &deviceErr):
		w.observer.ObserveError(w.output.Name, errorKindDevice)
		if IsDeviceGone(err) {
			w.logger.Warn().Err(err).Msg("Device disappeared")
			return fmt.Errorf("%s: %w: %w", w.output.Name, ErrDeviceGone, err)
		}
		if w.fatalDevice {
			return fmt.Errorf("%s: %w", w.output.Name, err)
		}
		w.logger.Error().Err(err).Msg("Brightness device failed")
		return nil

	case errors.As(err, &persistErr):
		w.observer.ObserveError(w.output.Name, errorKindPersist)
		return fmt.Errorf("%s: %w", w.output.Name, err)

	default:
		return fmt.Errorf("%s: %w", w.output.Name, err)
	}
}

func (w *Worker) publish() {
	status := w.ctrl.Status()

	w.mu.Lock()
	w.status = status
	w.mu.Unlock()

	w.observer.ObserveStatus(w.output.Name, status)
}

// IsDeviceGone reports whether err means the device was unplugged: a failing
// HID handle, or a sysfs node that vanished.
func IsDeviceGone(err error) bool {
	return hid.IsDeviceGoneError(err) || errors.Is(err, fs.ErrNotExist)
}
