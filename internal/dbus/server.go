// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus service for adaptive brightness control.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/output"
)

// ErrEmptyOutput is returned when an empty output name is provided.
var ErrEmptyOutput = errors.New("output name cannot be empty")

// ErrOutputNotFound is returned when no output has the requested name.
var ErrOutputNotFound = errors.New("output not found")

// ErrRateLimitExceeded is returned when brightness change requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrInvalidStep is returned when an invalid brightness step value is provided.
var ErrInvalidStep = errors.New("step must be between 1 and 100")

const (
	// rateLimitPerSecond is the maximum number of brightness changes per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for brightness changes.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.AdaptiveBrightness"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/AdaptiveBrightness"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.AdaptiveBrightness"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="ListOutputs">
      <arg name="outputs" type="a(ss)" direction="out"/>
    </method>
    <method name="GetBrightness">
      <arg name="output" type="s" direction="in"/>
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="SetBrightness">
      <arg name="output" type="s" direction="in"/>
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="IncreaseBrightness">
      <arg name="output" type="s" direction="in"/>
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="DecreaseBrightness">
      <arg name="output" type="s" direction="in"/>
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="SetAllBrightness">
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="GetStatus">
      <arg name="output" type="s" direction="in"/>
      <arg name="lux" type="t" direction="out"/>
      <arg name="brightness" type="t" direction="out"/>
      <arg name="pending" type="b" direction="out"/>
      <arg name="cooldown" type="u" direction="out"/>
      <arg name="samples" type="u" direction="out"/>
      <arg name="target" type="t" direction="out"/>
    </method>
    <signal name="OutputAdded">
      <arg name="output" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="OutputRemoved">
      <arg name="output" type="s"/>
    </signal>
    <signal name="BrightnessChanged">
      <arg name="output" type="s"/>
      <arg name="brightness" type="u"/>
    </signal>
    <signal name="SampleLearned">
      <arg name="output" type="s"/>
      <arg name="lux" type="t"/>
      <arg name="brightness" type="t"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// OutputRegistry gives access to the controlled outputs.
// This allows for mocking in tests.
type OutputRegistry interface {
	// List returns all outputs.
	List() []output.Info

	// Get returns an output by name.
	Get(name string) (output.Output, bool)

	// Status returns the control loop state of an output.
	Status(name string) (controller.Status, bool)
}

// DeviceErrorHandler is called when a device error (e.g., device disconnected) is detected.
// This allows the caller to trigger recovery actions like re-enumerating outputs.
type DeviceErrorHandler func(name string, err error)

// OutputInfo represents output information returned via D-Bus.
// Serializes to D-Bus type (ss) - a struct containing name and product name.
type OutputInfo struct {
	Name        string
	ProductName string
}

// Server implements the D-Bus service for brightness control.
//
// Manual brightness changes are written straight to the device. The control
// loop of the output sees them as user adjustments and learns from them.
//
// Thread safety:
//   - Outputs and their devices are individually thread-safe.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - The handlerMu mutex protects the deviceErrorHandler field.
//   - IncreaseBrightness and DecreaseBrightness perform non-atomic
//     read-modify-write operations. Concurrent calls may result in missed
//     increments. This is acceptable for typical keyboard shortcut usage.
type Server struct {
	conn               *dbus.Conn
	connMu             sync.RWMutex // Protects conn field only
	registry           OutputRegistry
	rateLimiter        *rate.Limiter
	handlerMu          sync.RWMutex // Protects deviceErrorHandler
	deviceErrorHandler DeviceErrorHandler
}

var _ output.Notifier = (*Server)(nil)

// NewServer creates a new D-Bus server for the given outputs.
func NewServer(registry OutputRegistry) *Server {
	return &Server{
		registry:    registry,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SetDeviceErrorHandler sets the callback invoked when device errors are detected.
//
// This method is thread-safe and can be called at any time.
func (s *Server) SetDeviceErrorHandler(handler DeviceErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.deviceErrorHandler = handler
}

// handleDeviceError checks if the error indicates a disconnected device and triggers recovery.
// Returns true if the error was a device error and recovery was triggered.
func (s *Server) handleDeviceError(name string, err error) bool {
	if err == nil || !output.IsDeviceGone(err) {
		return false
	}

	log.Warn().
		Err(err).
		Str("output", name).
		Msg("Device error detected, triggering recovery")

	s.handlerMu.RLock()
	handler := s.deviceErrorHandler
	s.handlerMu.RUnlock()

	if handler != nil {
		// Run recovery asynchronously to not block the D-Bus response
		go handler(name, err)
	}

	return true
}

// lookup resolves an output by name.
func (s *Server) lookup(name string) (output.Output, *dbus.Error) {
	if name == "" {
		return output.Output{}, dbus.MakeFailedError(ErrEmptyOutput)
	}
	out, ok := s.registry.Get(name)
	if !ok {
		log.Error().Str("output", name).Msg("Unknown output")
		return output.Output{}, dbus.MakeFailedError(fmt.Errorf("%w: %s", ErrOutputNotFound, name))
	}
	return out, nil
}

// getPercent reads the brightness of out as a percentage.
func (s *Server) getPercent(out output.Output) (uint32, error) {
	value, err := out.Device.Get()
	if err != nil {
		s.handleDeviceError(out.Name, err)
		return 0, err
	}
	return uint32(out.Device.Range().ToPercent(value)), nil
}

// setPercent writes a percentage to out and announces the change.
func (s *Server) setPercent(out output.Output, percent uint32) error {
	if percent > 100 {
		percent = 100
	}

	// #nosec G115 -- percent is clamped to 0-100, safe for uint8
	err := out.Device.Set(out.Device.Range().FromPercent(uint8(percent)))
	if err != nil {
		s.handleDeviceError(out.Name, err)
		return err
	}

	s.emitBrightnessChanged(out.Name, percent)
	return nil
}

// ListOutputs returns a list of all controlled outputs.
// Returns an array of structs: [{Name, ProductName}, ...]
func (s *Server) ListOutputs() ([]OutputInfo, *dbus.Error) {
	outputs := s.registry.List()
	result := make([]OutputInfo, len(outputs))
	for i, o := range outputs {
		result[i] = OutputInfo{Name: o.Name, ProductName: o.Product}
	}

	log.Debug().Int("count", len(result)).Msg("Listed outputs")
	return result, nil
}

// GetBrightness returns the brightness of an output as a percentage (0-100).
func (s *Server) GetBrightness(name string) (uint32, *dbus.Error) {
	out, dbusErr := s.lookup(name)
	if dbusErr != nil {
		return 0, dbusErr
	}

	percent, err := s.getPercent(out)
	if err != nil {
		log.Error().Err(err).Str("output", name).Msg("Failed to get brightness")
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Str("output", name).Uint32("brightness", percent).Msg("Got brightness")
	return percent, nil
}

// SetBrightness sets the brightness of an output to a percentage (0-100).
func (s *Server) SetBrightness(name string, brightness uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	out, dbusErr := s.lookup(name)
	if dbusErr != nil {
		return dbusErr
	}

	if err := s.setPercent(out, brightness); err != nil {
		log.Error().Err(err).Str("output", name).Msg("Failed to set brightness")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("output", name).Uint32("brightness", brightness).Msg("Set brightness")
	return nil
}

// IncreaseBrightness increases the brightness of an output by a step.
// The step parameter must be between 1 and 100.
func (s *Server) IncreaseBrightness(name string, step uint32) *dbus.Error {
	return s.stepBrightness("IncreaseBrightness", name, step, func(current uint32) uint32 {
		return min(current+step, 100)
	})
}

// DecreaseBrightness decreases the brightness of an output by a step.
// The step parameter must be between 1 and 100.
func (s *Server) DecreaseBrightness(name string, step uint32) *dbus.Error {
	return s.stepBrightness("DecreaseBrightness", name, step, func(current uint32) uint32 {
		if current > step {
			return current - step
		}
		return 0
	})
}

func (s *Server) stepBrightness(method, name string, step uint32, next func(current uint32) uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msgf("Rate limit exceeded for %s", method)
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if name == "" {
		return dbus.MakeFailedError(ErrEmptyOutput)
	}

	if step == 0 || step > 100 {
		return dbus.MakeFailedError(ErrInvalidStep)
	}

	out, dbusErr := s.lookup(name)
	if dbusErr != nil {
		return dbusErr
	}

	current, err := s.getPercent(out)
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	target := next(current)
	if err := s.setPercent(out, target); err != nil {
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("output", name).Uint32("step", step).Uint32("new", target).Msg(method)
	return nil
}

// SetAllBrightness sets the brightness of all outputs to a percentage (0-100).
func (s *Server) SetAllBrightness(brightness uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetAllBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	outputs := s.registry.List()
	for _, info := range outputs {
		out, ok := s.registry.Get(info.Name)
		if !ok {
			continue
		}
		if err := s.setPercent(out, brightness); err != nil {
			log.Error().Err(err).Str("output", info.Name).Msg("Failed to set brightness")
			continue
		}
	}

	log.Debug().Uint32("brightness", brightness).Int("count", len(outputs)).Msg("Set all brightness")
	return nil
}

// GetStatus returns the control loop state of an output: filtered lux,
// brightness in device units, whether an adjustment is pending, the
// remaining cooldown cycles, the number of learned samples and the last
// predicted brightness.
func (s *Server) GetStatus(name string) (uint64, uint64, bool, uint32, uint32, uint64, *dbus.Error) {
	if name == "" {
		return 0, 0, false, 0, 0, 0, dbus.MakeFailedError(ErrEmptyOutput)
	}

	status, ok := s.registry.Status(name)
	if !ok {
		return 0, 0, false, 0, 0, 0, dbus.MakeFailedError(fmt.Errorf("%w: %s", ErrOutputNotFound, name))
	}

	// #nosec G115 -- sample count is bounded by memory, far below 2^32
	return status.Lux, status.Brightness, status.Pending, uint32(status.Cooldown), uint32(status.Samples), status.Target, nil
}

// emit sends a signal if the service is connected.
func (s *Server) emit(signal string, args ...interface{}) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, args...); err != nil {
		log.Error().Err(err).Msgf("Failed to emit %s signal", signal)
	}
}

func (s *Server) emitBrightnessChanged(name string, brightness uint32) {
	s.emit("BrightnessChanged", name, brightness)
}

// OutputAdded emits the OutputAdded signal.
func (s *Server) OutputAdded(name, productName string) {
	s.emit("OutputAdded", name, productName)
}

// OutputRemoved emits the OutputRemoved signal.
func (s *Server) OutputRemoved(name string) {
	s.emit("OutputRemoved", name)
}

// SampleLearned emits the SampleLearned signal.
func (s *Server) SampleLearned(name string, lux, brightness uint64) {
	s.emit("SampleLearned", name, lux, brightness)
}
