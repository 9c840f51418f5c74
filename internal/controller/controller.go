// SPDX-License-Identifier: GPL-3.0-only

// Package controller implements the adaptive brightness control loop. It learns
// the brightness a user prefers under each ambient light and content luminance
// condition, and otherwise drives the display towards a predicted brightness.
package controller

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/kalman"
)

// CooldownCycles is the number of consecutive sensing cycles without a user
// edit before a pending edit is learned.
const CooldownCycles uint8 = 15

// phase tells whether a user edit is being accumulated.
type phase int

const (
	idle phase = iota
	capturing
)

// pending is an unconfirmed user edit. Lux and luminance are frozen at the
// first edit of a streak, brightness follows the latest one.
type pending struct {
	phase  phase
	sample Sample
}

// Status is a point-in-time view of a controller.
type Status struct {
	Lux        uint64
	Luminance  Luminance
	Brightness uint64
	Target     uint64
	Pending    bool
	Cooldown   uint8
	Samples    int
	WarmingUp  bool
}

// Controller is the per-output control loop. It is driven by exactly one
// sensing loop and is not safe for concurrent use.
type Controller struct {
	brightness  Brightness
	als         AmbientLight
	persistence Persistence
	persistent  bool

	filter *kalman.Filter
	store  *Store

	lastBrightness uint64
	cooldown       uint8
	pending        pending

	lux    uint64
	luma   Luminance
	target uint64

	sleep   func(time.Duration)
	onLearn func(Sample)
	onRamp  func(from, to uint64)
	logger  zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithFilter replaces the default lux smoothing filter.
func WithFilter(f *kalman.Filter) Option {
	return func(c *Controller) {
		c.filter = f
	}
}

// WithSleep replaces time.Sleep in brightness transitions. Used in tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// WithLogger sets the logger used by the controller.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLearnHook registers a callback invoked synchronously after every learned sample.
func WithLearnHook(fn func(Sample)) Option {
	return func(c *Controller) {
		c.onLearn = fn
	}
}

// WithRampHook registers a callback invoked after the controller moved the
// display towards a prediction.
func WithRampHook(fn func(from, to uint64)) Option {
	return func(c *Controller) {
		c.onRamp = fn
	}
}

// New creates a controller for one output. When persistent is true the
// learned samples are loaded from persistence (an unreadable store starts
// empty) and saved after every learned sample.
func New(brightness Brightness, als AmbientLight, persistence Persistence, persistent bool, opts ...Option) *Controller {
	c := &Controller{
		brightness:  brightness,
		als:         als,
		persistence: persistence,
		persistent:  persistent && persistence != nil,
		filter:      kalman.NewDefault(),
		sleep:       time.Sleep,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if persistent && persistence == nil {
		c.logger.Warn().Msg("Persistent mode requested without a storage backend, learning in memory only")
	}

	c.store = NewStore(nil)
	if c.persistent {
		samples, err := persistence.Load()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to load learned samples, starting from scratch")
		} else {
			c.store = NewStore(samples)
			c.logger.Info().Int("samples", c.store.Len()).Msg("Loaded learned samples")
		}
	}

	return c
}

// Adjust runs one sensing cycle with the latest content luminance.
//
// The first cycle only seeds the lux filter and records the current
// brightness. Later cycles either track a user edit, learn it once the user
// stops adjusting, or move the display towards the predicted brightness.
func (c *Controller) Adjust(luma Luminance) error {
	raw, err := c.als.Get()
	if err != nil {
		return &SensorError{Err: err}
	}

	// Readiness is sampled before the first measurement on purpose: the first
	// cycle is pure warm-up, so the brightness found at startup is recorded
	// instead of being learned as a user edit.
	ready := c.filter.Initialized()
	lux := uint64(math.Round(c.filter.Process(float64(raw))))
	c.lux, c.luma = lux, luma

	brightness, err := c.brightness.Get()
	if err != nil {
		return &DeviceError{Op: "get", Err: err}
	}

	if !ready {
		c.lastBrightness = brightness
		return nil
	}

	return c.process(lux, luma, brightness)
}

func (c *Controller) process(lux uint64, luma Luminance, brightness uint64) error {
	userEdited := brightness != c.lastBrightness
	noData := c.store.Len() == 0 && c.pending.phase == idle

	switch {
	case userEdited || noData:
		c.lastBrightness = brightness
		if c.pending.phase == idle {
			c.pending = pending{phase: capturing, sample: NewSample(lux, luma, brightness)}
			c.logger.Debug().
				Uint64("lux", lux).
				Stringer("luma", luma).
				Uint64("brightness", brightness).
				Msg("User adjustment detected")
		} else {
			c.pending.sample.Brightness = brightness
		}
		c.cooldown = CooldownCycles

	case c.cooldown > 0:
		c.lastBrightness = brightness
		c.cooldown--

	case c.pending.phase == capturing:
		c.lastBrightness = brightness
		return c.learn()

	default:
		c.target = c.store.Predict(lux, luma)
		applied, err := c.ramp(brightness, c.target)
		c.lastBrightness = applied
		if err != nil {
			return err
		}
		if applied != brightness {
			c.logger.Debug().
				Uint64("lux", lux).
				Stringer("luma", luma).
				Uint64("from", brightness).
				Uint64("to", applied).
				Msg("Brightness adjusted")
			if c.onRamp != nil {
				c.onRamp(brightness, applied)
			}
		}
	}

	return nil
}

func (c *Controller) learn() error {
	sample := c.pending.sample
	c.pending = pending{}

	c.store.Learn(sample)
	c.logger.Info().
		Uint64("lux", sample.Lux).
		Stringer("luma", sample.Luminance).
		Uint64("brightness", sample.Brightness).
		Int("samples", c.store.Len()).
		Msg("Learned brightness preference")

	if c.onLearn != nil {
		c.onLearn(sample)
	}

	if c.persistent {
		if err := c.persistence.Save(c.store.Samples()); err != nil {
			return &PersistError{Err: err}
		}
	}

	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	return Status{
		Lux:        c.lux,
		Luminance:  c.luma,
		Brightness: c.lastBrightness,
		Target:     c.target,
		Pending:    c.pending.phase == capturing,
		Cooldown:   c.cooldown,
		Samples:    c.store.Len(),
		WarmingUp:  !c.filter.Initialized(),
	}
}

// Samples returns a copy of the learned samples.
func (c *Controller) Samples() []Sample {
	return c.store.Samples()
}
