// SPDX-License-Identifier: GPL-3.0-only

package output

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/hid"
	"github.com/shini4i/asd-adaptive-brightness/internal/luma"
)

// ErrNotStarted is returned when outputs are added before Start.
var ErrNotStarted = errors.New("supervisor not started")

// DisplayManager enumerates Apple Studio Displays.
type DisplayManager interface {
	ListDisplays() []hid.DeviceInfo
	GetDisplay(serial string) (*hid.Display, error)
	RefreshDisplays() error
	Forget(serial string)
}

// Storage hands out the persistence of each output.
type Storage interface {
	For(output string) controller.Persistence
}

// Config holds the settings shared by all control loops.
type Config struct {
	Interval          time.Duration
	Persistent        bool
	FatalDeviceErrors bool
}

// Snapshot is the state of one output.
type Snapshot struct {
	Info
	Status controller.Status
}

// Changes lists what a refresh added and removed.
type Changes struct {
	Added   []Info
	Removed []string
}

type running struct {
	output Output
	worker *Worker
	cancel context.CancelFunc
}

// Supervisor owns the control loops of all outputs.
type Supervisor struct {
	cfg      Config
	als      controller.AmbientLight
	luma     luma.Source
	storage  Storage
	displays DisplayManager
	notifier Notifier
	observer Observer
	ctrlOpts []controller.Option

	mu      sync.RWMutex
	ctx     context.Context
	outputs map[string]*running

	refreshMu sync.Mutex
	wg        sync.WaitGroup
	fatal     chan error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDisplays enables Studio Display outputs managed by m.
func WithDisplays(m DisplayManager) Option {
	return func(s *Supervisor) {
		s.displays = m
	}
}

// WithStorage sets where learned samples are persisted.
func WithStorage(st Storage) Option {
	return func(s *Supervisor) {
		s.storage = st
	}
}

// WithNotifier sets the receiver of output and learning notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Supervisor) {
		s.notifier = n
	}
}

// WithObserver sets the receiver of control loop state.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		s.observer = o
	}
}

// WithControllerOptions appends options to every controller the supervisor creates.
func WithControllerOptions(opts ...controller.Option) Option {
	return func(s *Supervisor) {
		s.ctrlOpts = append(s.ctrlOpts, opts...)
	}
}

// NewSupervisor creates a supervisor sharing one ambient light and one
// content luminance source between all outputs.
func NewSupervisor(cfg Config, als controller.AmbientLight, lumaSource luma.Source, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		als:      als,
		luma:     lumaSource,
		notifier: nopNotifier{},
		observer: nopObserver{},
		outputs:  make(map[string]*running),
		fatal:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.luma == nil {
		s.luma = luma.None{}
	}
	return s
}

// SetNotifier replaces the notifier. It must be called before Start.
func (s *Supervisor) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start binds the lifetime of all control loops to ctx.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

// Fatal delivers the first error that must terminate the daemon.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Add starts a control loop for out.
func (s *Supervisor) Add(out Output) error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if _, exists := s.outputs[out.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("output %s already running", out.Name)
	}

	r := &running{output: out, worker: s.newWorker(out)}
	ctx, cancel := context.WithCancel(s.ctx)
	r.cancel = cancel
	s.outputs[out.Name] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, r)

	log.Info().Str("output", out.Name).Str("kind", string(out.Kind)).Str("product", out.Product).Msg("Output added")
	s.notifier.OutputAdded(out.Name, out.Product)
	return nil
}

func (s *Supervisor) newWorker(out Output) *Worker {
	logger := log.With().Str("output", out.Name).Logger()

	var persistence controller.Persistence
	if s.storage != nil {
		persistence = s.storage.For(out.Name)
	}

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithLearnHook(func(sample controller.Sample) {
			s.observer.ObserveLearned(out.Name)
			s.notifier.SampleLearned(out.Name, sample.Lux, sample.Brightness)
		}),
		controller.WithRampHook(func(uint64, uint64) {
			s.observer.ObserveRamp(out.Name)
		}),
	}
	opts = append(opts, s.ctrlOpts...)

	return &Worker{
		output:      out,
		ctrl:        controller.New(out.Device, s.als, persistence, s.cfg.Persistent, opts...),
		luma:        s.luma,
		interval:    s.cfg.Interval,
		fatalDevice: s.cfg.FatalDeviceErrors,
		observer:    s.observer,
		logger:      logger,
	}
}

func (s *Supervisor) run(ctx context.Context, r *running) {
	defer s.wg.Done()

	err := r.worker.Run(ctx)
	if err == nil {
		return
	}

	// Only the loop still registered under its name may act on its error;
	// otherwise it was removed while its last cycle was failing.
	if !s.detach(r) {
		return
	}
	r.cancel()
	s.observer.Forget(r.output.Name)
	s.notifier.OutputRemoved(r.output.Name)

	if errors.Is(err, ErrDeviceGone) {
		go s.reacquire(r.output)
		return
	}

	log.Error().Err(err).Str("output", r.output.Name).Msg("Control loop failed")
	select {
	case s.fatal <- err:
	default:
	}
}

func (s *Supervisor) detach(r *running) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outputs[r.output.Name] != r {
		return false
	}
	delete(s.outputs, r.output.Name)
	return true
}

func (s *Supervisor) reacquire(out Output) {
	if out.Kind != KindStudioDisplay || s.displays == nil {
		log.Info().Str("output", out.Name).Msg("Output removed until the device reappears")
		return
	}

	s.mu.RLock()
	stopping := s.ctx == nil || s.ctx.Err() != nil
	s.mu.RUnlock()
	if stopping {
		return
	}

	s.displays.Forget(out.Name)
	if _, err := s.Refresh(); err != nil {
		log.Error().Err(err).Str("output", out.Name).Msg("Failed to recover display")
	}
}

// Recover drops the output and re-enumerates it. It is used when a device
// error is observed outside the control loop.
func (s *Supervisor) Recover(name string) {
	out, ok := s.Get(name)
	if !ok {
		return
	}
	s.Remove(name)
	s.reacquire(out)
}

// Remove stops the control loop of the named output.
func (s *Supervisor) Remove(name string) bool {
	s.mu.Lock()
	r, ok := s.outputs[name]
	if ok {
		delete(s.outputs, name)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	r.cancel()
	s.observer.Forget(name)
	log.Info().Str("output", name).Msg("Output removed")
	s.notifier.OutputRemoved(name)
	return true
}

// Refresh reconciles Studio Display outputs with the connected displays.
func (s *Supervisor) Refresh() (Changes, error) {
	var changes Changes
	if s.displays == nil {
		return changes, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if err := s.displays.RefreshDisplays(); err != nil {
		return changes, err
	}

	connected := make(map[string]hid.DeviceInfo)
	for _, info := range s.displays.ListDisplays() {
		connected[info.Serial] = info
	}

	for _, info := range s.List() {
		if info.Kind != KindStudioDisplay {
			continue
		}
		if _, ok := connected[info.Name]; !ok && s.Remove(info.Name) {
			changes.Removed = append(changes.Removed, info.Name)
		}
	}

	serials := make([]string, 0, len(connected))
	for serial := range connected {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	for _, serial := range serials {
		if _, ok := s.Get(serial); ok {
			continue
		}
		display, err := s.displays.GetDisplay(serial)
		if err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("Display vanished during refresh")
			continue
		}
		out := Output{
			Name:    serial,
			Product: connected[serial].Product,
			Kind:    KindStudioDisplay,
			Device:  display,
		}
		if err := s.Add(out); err != nil {
			return changes, err
		}
		changes.Added = append(changes.Added, out.Info())
	}

	return changes, nil
}

// List returns the running outputs ordered by name.
func (s *Supervisor) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.outputs))
	for _, r := range s.outputs {
		infos = append(infos, r.output.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Get returns the named output.
func (s *Supervisor) Get(name string) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.outputs[name]
	if !ok {
		return Output{}, false
	}
	return r.output, true
}

// Status returns the controller state of the named output.
func (s *Supervisor) Status(name string) (controller.Status, bool) {
	s.mu.RLock()
	r, ok := s.outputs[name]
	s.mu.RUnlock()

	if !ok {
		return controller.Status{}, false
	}
	return r.worker.Status(), true
}

// Snapshots returns the state of all outputs ordered by name.
func (s *Supervisor) Snapshots() []Snapshot {
	infos := s.List()
	snapshots := make([]Snapshot, 0, len(infos))
	for _, info := range infos {
		status, ok := s.Status(info.Name)
		if !ok {
			continue
		}
		snapshots = append(snapshots, Snapshot{Info: info, Status: status})
	}
	return snapshots
}

// Stop cancels all control loops and waits for them to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	for name, r := range s.outputs {
		r.cancel()
		delete(s.outputs, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
