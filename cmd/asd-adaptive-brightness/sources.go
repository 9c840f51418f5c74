// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/als"
	"github.com/shini4i/asd-adaptive-brightness/internal/backlight"
	"github.com/shini4i/asd-adaptive-brightness/internal/config"
	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/luma"
	"github.com/shini4i/asd-adaptive-brightness/internal/output"
)

// newAmbientLight builds the configured sensor and a function releasing it.
func newAmbientLight(cfg config.ALS) (controller.AmbientLight, func(), error) {
	noop := func() {}

	switch cfg.Type {
	case config.ALSIIO:
		dir := cfg.Path
		if dir == "" {
			found, err := als.DiscoverIIO(als.DefaultIIORoot)
			if err != nil {
				return nil, noop, err
			}
			dir = found
		}
		sensor, err := als.NewIIO(dir)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str("device", dir).Msg("Using IIO ambient light sensor")
		return sensor, noop, nil

	case config.ALSTime:
		sensor, err := als.NewTime(cfg.Thresholds)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Int("thresholds", len(cfg.Thresholds)).Msg("Using time of day as ambient light")
		return sensor, noop, nil

	case config.ALSMQTT:
		sensor, err := als.NewMQTT(als.MQTTConfig{
			Broker:     cfg.MQTT.Broker,
			Topic:      cfg.MQTT.Topic,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			Key:        cfg.MQTT.Key,
			StaleAfter: cfg.MQTT.StaleAfter,
		})
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("Using MQTT ambient light sensor")
		return sensor, sensor.Close, nil

	case config.ALSStatic:
		log.Info().Uint64("lux", cfg.Lux).Msg("Using a static ambient light value")
		return als.NewStatic(cfg.Lux), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown als type %q", cfg.Type)
	}
}

func newLumaSource(cfg config.Luma) luma.Source {
	if cfg.Type == config.LumaFile {
		log.Info().Str("path", cfg.Path).Msg("Using screenshot file as content luminance")
		return luma.NewFile(cfg.Path)
	}
	return luma.None{}
}

// newLogindWriter connects to logind, or returns nil when the system bus is
// unavailable. Backlights are then only writable through sysfs.
func newLogindWriter() *backlight.Logind {
	writer, err := backlight.NewLogind()
	if err != nil {
		log.Warn().Err(err).Msg("logind unavailable, backlights need a writable sysfs")
		return nil
	}
	return writer
}

// backlightSource opens the backlight outputs allowed by the configuration.
type backlightSource struct {
	root    string
	allowed []string
	logind  *backlight.Logind
}

func newBacklightSource(root string, allowed []string, logind *backlight.Logind) *backlightSource {
	return &backlightSource{root: root, allowed: allowed, logind: logind}
}

// Allowed reports whether the named backlight should be controlled.
func (b *backlightSource) Allowed(name string) bool {
	return len(b.allowed) == 0 || slices.Contains(b.allowed, name)
}

// Open opens the named backlight as an output.
func (b *backlightSource) Open(name string) (output.Output, error) {
	var opts []backlight.Option
	if b.logind != nil {
		opts = append(opts, backlight.WithWriter(b.logind))
	}

	device, err := backlight.Open(filepath.Join(b.root, name), opts...)
	if err != nil {
		return output.Output{}, err
	}

	return output.Output{
		Name:    name,
		Product: "Backlight",
		Kind:    output.KindBacklight,
		Device:  device,
	}, nil
}

// Names lists the allowed backlights currently present.
func (b *backlightSource) Names() ([]string, error) {
	dirs, err := backlight.Discover(b.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, dir := range dirs {
		if name := filepath.Base(dir); b.Allowed(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *backlightSource) Close() {
	if b.logind == nil {
		return
	}
	if err := b.logind.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close logind connection")
	}
}
