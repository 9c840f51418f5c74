// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/output"
	"github.com/shini4i/asd-adaptive-brightness/internal/udev"
)

const maxRefreshRetries = 3

var (
	// settleDelay lets a freshly plugged USB device enumerate all its
	// interfaces before HID is accessible.
	settleDelay = 500 * time.Millisecond

	// retryBackoff is the linear backoff unit between refresh attempts.
	retryBackoff = 500 * time.Millisecond
)

// outputRegistry is the part of the supervisor hot-plug handling drives.
type outputRegistry interface {
	Add(out output.Output) error
	Remove(name string) bool
	Get(name string) (output.Output, bool)
	List() []output.Info
	Refresh() (output.Changes, error)
}

// backlights opens backlight outputs by kernel name.
type backlights interface {
	Allowed(name string) bool
	Open(name string) (output.Output, error)
	Names() ([]string, error)
}

// refreshMu serializes output refresh operations to prevent race conditions
// between hotplug handlers and recovery handlers.
var refreshMu sync.Mutex

// startOutputs attaches every backlight and connected display.
func startOutputs(registry outputRegistry, source backlights) {
	names, err := source.Names()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to discover backlights")
	}
	for _, name := range names {
		addBacklight(registry, source, name)
	}

	changes, err := registry.Refresh()
	if err != nil {
		log.Error().Err(err).Msg("Failed to enumerate displays")
	}
	logChanges(changes)

	count := len(registry.List())
	if count == 0 {
		log.Warn().Msg("No controllable displays found")
	} else {
		log.Info().Int("count", count).Msg("Controlling displays")
	}
}

func addBacklight(registry outputRegistry, source backlights, name string) bool {
	if !source.Allowed(name) {
		log.Debug().Str("output", name).Msg("Backlight not configured, ignoring")
		return false
	}
	if _, exists := registry.Get(name); exists {
		return false
	}

	out, err := source.Open(name)
	if err != nil {
		log.Warn().Err(err).Str("output", name).Msg("Failed to open backlight")
		return false
	}
	if err := registry.Add(out); err != nil {
		log.Error().Err(err).Str("output", name).Msg("Failed to start backlight control")
		return false
	}
	return true
}

// refreshOutputsWithRetry attempts to refresh displays with linear backoff.
// It retries up to maxRetries times with increasing delays between attempts.
func refreshOutputsWithRetry(registry outputRegistry, maxRetries int) (output.Changes, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * retryBackoff
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying display refresh")
			time.Sleep(backoff)
		}

		changes, err := registry.Refresh()
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Display refresh failed")
			continue
		}

		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Msg("Display refresh succeeded after retry")
		}
		return changes, nil
	}
	return output.Changes{}, lastErr
}

func logChanges(changes output.Changes) {
	for _, info := range changes.Added {
		log.Info().Str("output", info.Name).Str("product", info.Product).Msg("Display connected")
	}
	for _, name := range changes.Removed {
		log.Info().Str("output", name).Msg("Display disconnected")
	}
}

// createHotplugHandler returns an event handler that attaches and detaches
// outputs. Backlights are handled by name; USB events trigger a display
// refresh. The handler uses the shared refreshMu to prevent race conditions
// with recovery handlers.
func createHotplugHandler(registry outputRegistry, source backlights) udev.EventHandler {
	return func(event udev.Event) {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		if event.Subsystem == udev.SubsystemBacklight {
			switch event.Type {
			case udev.EventAdd:
				addBacklight(registry, source, event.Name)
			case udev.EventRemove:
				registry.Remove(event.Name)
			}
			return
		}

		// Remove events don't need this delay as the device is already gone.
		if event.Type == udev.EventAdd {
			time.Sleep(settleDelay)
		}

		changes, err := refreshOutputsWithRetry(registry, maxRefreshRetries)
		if err != nil {
			log.Error().Err(err).Msg("Failed to refresh displays after hot-plug event (all retries exhausted)")
			return
		}
		logChanges(changes)
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow recovery.
// It rescans backlights and displays to recover from potentially missed udev
// events. The handler uses the shared refreshMu to prevent race conditions
// with hotplug handlers.
func createRecoveryHandler(registry outputRegistry, source backlights) udev.RecoveryHandler {
	return func() {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		log.Info().Msg("Performing recovery refresh after netlink buffer overflow")

		names, err := source.Names()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to rescan backlights")
		}
		present := make(map[string]bool, len(names))
		for _, name := range names {
			present[name] = true
			if addBacklight(registry, source, name) {
				log.Info().Str("output", name).Msg("Backlight found during recovery")
			}
		}
		if err == nil {
			for _, info := range registry.List() {
				if info.Kind == output.KindBacklight && !present[info.Name] {
					log.Info().Str("output", info.Name).Msg("Backlight lost during recovery")
					registry.Remove(info.Name)
				}
			}
		}

		// Wait a moment for any pending USB operations to settle
		time.Sleep(settleDelay)

		changes, err := refreshOutputsWithRetry(registry, maxRefreshRetries)
		if err != nil {
			log.Error().Err(err).Msg("Recovery refresh failed (all retries exhausted)")
			return
		}
		logChanges(changes)

		log.Info().Int("outputs", len(registry.List())).Msg("Recovery refresh completed")
	}
}
