// SPDX-License-Identifier: GPL-3.0-only

package output

import (
	"sync"

	"github.com/shini4i/asd-adaptive-brightness/internal/brightness"
	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

type fakeDevice struct {
	mu     sync.Mutex
	value  uint64
	getErr error
	sets   []uint64
}

func (d *fakeDevice) Get() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.getErr
}

func (d *fakeDevice) Set(value uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = value
	d.sets = append(d.sets, value)
	return nil
}

func (d *fakeDevice) Range() brightness.Range {
	return brightness.Range{Min: 0, Max: 100}
}

type fakeALS struct {
	value uint64
	err   error
}

func (a *fakeALS) Get() (uint64, error) {
	return a.value, a.err
}

type failingPersistence struct {
	err error
}

func (p *failingPersistence) Load() ([]controller.Sample, error) { return nil, nil }

func (p *failingPersistence) Save([]controller.Sample) error { return p.err }

type failingStorage struct {
	err error
}

func (s *failingStorage) For(string) controller.Persistence {
	return &failingPersistence{err: s.err}
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses map[string]controller.Status
	learned  map[string]int
	ramps    map[string]int
	errors   map[string][]string
	forgot   []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		statuses: make(map[string]controller.Status),
		learned:  make(map[string]int),
		ramps:    make(map[string]int),
		errors:   make(map[string][]string),
	}
}

func (o *recordingObserver) ObserveStatus(output string, status controller.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[output] = status
}

func (o *recordingObserver) ObserveLearned(output string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.learned[output]++
}

func (o *recordingObserver) ObserveRamp(output string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ramps[output]++
}

func (o *recordingObserver) ObserveError(output, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors[output] = append(o.errors[output], kind)
}

func (o *recordingObserver) Forget(output string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forgot = append(o.forgot, output)
}

func (o *recordingObserver) errorKinds(output string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.errors[output]...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	added   []string
	removed []string
	learned []controller.Sample
}

func (n *recordingNotifier) OutputAdded(name, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, name)
}

func (n *recordingNotifier) OutputRemoved(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, name)
}

func (n *recordingNotifier) SampleLearned(_ string, lux, brightness uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.learned = append(n.learned, controller.NewSample(lux, controller.NoLuminance, brightness))
}

func (n *recordingNotifier) snapshot() (added, removed []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.added...), append([]string(nil), n.removed...)
}
