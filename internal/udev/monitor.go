// SPDX-License-Identifier: GPL-3.0-only

// Package udev provides hot-plug detection for brightness devices via
// netlink/udev events: Apple Studio Displays on USB and kernel backlights.
package udev

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// USB hot-plug generates many netlink messages rapidly; 2MB handles typical scenarios.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB

	// removeDebounce suppresses the burst of remove events a single USB
	// device produces (one per interface).
	removeDebounce = 2 * time.Second

	// removeEntryTTL is how long debounce entries are kept before cleanup.
	removeEntryTTL = time.Minute
)

const (
	// AppleVendorIDPattern matches the Apple USB vendor ID as udev reports it.
	// Kernels differ in zero padding and case ("5ac", "05ac", "5AC").
	AppleVendorIDPattern = "0?5[aA][cC]"

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID = "1114"

	// SubsystemUSB is the udev subsystem of Studio Display events.
	SubsystemUSB = "usb"

	// SubsystemBacklight is the udev subsystem of laptop panel backlights.
	SubsystemBacklight = "backlight"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a device was connected.
	EventAdd EventType = iota
	// EventRemove indicates a device was disconnected.
	EventRemove
)

// Event represents a device hot-plug event.
type Event struct {
	Type      EventType
	Subsystem string
	// Name is the backlight device name, or the USB PRODUCT string.
	Name string
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error condition
// (e.g., netlink buffer overflow) and needs to trigger a refresh.
type RecoveryHandler func()

// Monitor watches for brightness device connect/disconnect events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	lastRemoveTime  map[string]time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:        handler,
		lastRemoveTime: make(map[string]time.Time),
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
// This should trigger a device refresh to recover from potentially missed events.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher creates add/remove rules for Studio Displays and backlights.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// The PRODUCT env var format is "vendorId/productId/bcdDevice" (e.g., "5ac/1114/157").
	// Anchored so that "5ac/11149" does not match.
	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", AppleVendorIDPattern, StudioDisplayProductID)

	for _, action := range []string{"add", "remove"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^" + SubsystemUSB + "$",
				"PRODUCT":   productPattern,
			},
		})
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^" + SubsystemBacklight + "$",
			},
		})
	}

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Events may have been dropped, so re-enumerate.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery refresh")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// Limited by net.core.rmem_max
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounceRemove records a remove event for key and reports whether
// one was already seen within the debounce window. Entries older than
// removeEntryTTL are dropped.
func (m *Monitor) shouldDebounceRemove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, seen := range m.lastRemoveTime {
		if now.Sub(seen) > removeEntryTTL {
			delete(m.lastRemoveTime, k)
		}
	}

	if last, ok := m.lastRemoveTime[key]; ok && now.Sub(last) < removeDebounce {
		return true
	}
	m.lastRemoveTime[key] = now
	return false
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	subsystem := uevent.Env["SUBSYSTEM"]
	if subsystem == "" {
		subsystem = SubsystemUSB
	}

	var name string
	switch subsystem {
	case SubsystemBacklight:
		name = path.Base(uevent.KObj)
	default:
		// Only usb_device, not usb_interface, on ADD. REMOVE events may lack
		// DEVTYPE since the device is already gone.
		if uevent.Action == netlink.ADD && uevent.Env["DEVTYPE"] != "usb_device" {
			return
		}
		name = uevent.Env["PRODUCT"]
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("subsystem", subsystem).
		Str("devpath", uevent.KObj).
		Str("name", name).
		Msg("Device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
		log.Info().Str("subsystem", subsystem).Str("name", name).Msg("Brightness device connected")
	case netlink.REMOVE:
		if m.shouldDebounceRemove(subsystem + ":" + name) {
			log.Debug().Str("name", name).Msg("Ignoring duplicate remove event")
			return
		}
		eventType = EventRemove
		log.Info().Str("subsystem", subsystem).Str("name", name).Msg("Brightness device disconnected")
	default:
		return
	}

	if m.handler != nil {
		m.handler(Event{Type: eventType, Subsystem: subsystem, Name: name})
	}
}
