// SPDX-License-Identifier: GPL-3.0-only

// Package output runs one adaptive brightness control loop per display and
// keeps the set of loops in sync with the connected hardware.
package output

import (
	"github.com/shini4i/asd-adaptive-brightness/internal/brightness"
	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// Kind identifies the hardware behind an output.
type Kind string

const (
	// KindBacklight is a laptop panel driven through /sys/class/backlight.
	KindBacklight Kind = "backlight"

	// KindStudioDisplay is an Apple Studio Display driven over USB HID.
	KindStudioDisplay Kind = "studio-display"
)

// Device is a brightness device in its native unit.
type Device interface {
	controller.Brightness
	Range() brightness.Range
}

// Output is a display whose brightness is controlled.
type Output struct {
	// Name identifies the output: the backlight name or the display serial.
	Name    string
	Product string
	Kind    Kind
	Device  Device
}

// Info describes an output without exposing its device.
type Info struct {
	Name    string
	Product string
	Kind    Kind
}

// Info returns the description of o.
func (o Output) Info() Info {
	return Info{Name: o.Name, Product: o.Product, Kind: o.Kind}
}

// Notifier is told about changes clients may want to react to.
type Notifier interface {
	OutputAdded(name, product string)
	OutputRemoved(name string)
	SampleLearned(name string, lux, brightness uint64)
}

// Observer records the state of control loops, typically as metrics.
type Observer interface {
	ObserveStatus(output string, status controller.Status)
	ObserveLearned(output string)
	ObserveRamp(output string)
	ObserveError(output, kind string)
	Forget(output string)
}

type nopNotifier struct{}

func (nopNotifier) OutputAdded(string, string)           {}
func (nopNotifier) OutputRemoved(string)                 {}
func (nopNotifier) SampleLearned(string, uint64, uint64) {}

type nopObserver struct{}

func (nopObserver) ObserveStatus(string, controller.Status) {}
func (nopObserver) ObserveLearned(string)                   {}
func (nopObserver) ObserveRamp(string)                      {}
func (nopObserver) ObserveError(string, string)             {}
func (nopObserver) Forget(string)                           {}
