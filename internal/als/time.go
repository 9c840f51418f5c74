// SPDX-License-Identifier: GPL-3.0-only

package als

import (
	"fmt"
	"sort"
	"time"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// DefaultThresholds maps the hour of day to a simulated lux value.
var DefaultThresholds = map[uint8]uint64{
	0:  0,
	7:  10,
	9:  20,
	11: 30,
	16: 10,
	18: 0,
}

type threshold struct {
	hour uint8
	lux  uint64
}

// Time simulates an ambient light sensor from the time of day, for machines
// without one. The highest threshold at or before the current hour applies;
// before the first threshold the last one of the previous day does.
type Time struct {
	thresholds []threshold
	now        func() time.Time
}

var _ controller.AmbientLight = (*Time)(nil)

// TimeOption configures a Time source.
type TimeOption func(*Time)

// WithClock replaces time.Now. Used in tests.
func WithClock(now func() time.Time) TimeOption {
	return func(t *Time) {
		t.now = now
	}
}

// NewTime builds a source from an hour to lux table. Hours must be below 24.
func NewTime(thresholds map[uint8]uint64, opts ...TimeOption) (*Time, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("time source needs at least one threshold")
	}

	t := &Time{now: time.Now}
	for hour, lux := range thresholds {
		if hour > 23 {
			return nil, fmt.Errorf("invalid threshold hour %d", hour)
		}
		t.thresholds = append(t.thresholds, threshold{hour: hour, lux: lux})
	}
	sort.Slice(t.thresholds, func(i, j int) bool {
		return t.thresholds[i].hour < t.thresholds[j].hour
	})

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Get returns the lux value for the current hour.
func (t *Time) Get() (uint64, error) {
	hour := uint8(t.now().Hour())

	current := t.thresholds[len(t.thresholds)-1]
	for _, th := range t.thresholds {
		if th.hour > hour {
			break
		}
		current = th
	}
	return current.lux, nil
}
