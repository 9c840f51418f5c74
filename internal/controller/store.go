// SPDX-License-Identifier: GPL-3.0-only

package controller

import "math"

// Store is the ordered set of learned samples. Insertion order is preserved.
// No two samples share the same (lux, luminance) pair once Learn has run.
type Store struct {
	samples []Sample
}

// NewStore creates a store holding a copy of samples.
func NewStore(samples []Sample) *Store {
	s := &Store{}
	if len(samples) > 0 {
		s.samples = append([]Sample(nil), samples...)
	}
	return s
}

// Len returns the number of learned samples.
func (s *Store) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the learned samples in insertion order.
func (s *Store) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Learn drops every sample contradicted by fresh, then appends fresh.
//
// Desired brightness is assumed not to decrease when either the ambient light
// or the content luminance increases with the other axis held. Existing
// samples that violate this relative to fresh are discarded; a sample at the
// exact same conditions is always superseded.
func (s *Store) Learn(fresh Sample) {
	kept := s.samples[:0]
	for _, existing := range s.samples {
		if consistent(existing, fresh) {
			kept = append(kept, existing)
		}
	}
	// Zero the tail so dropped samples do not linger in the backing array.
	for i := len(kept); i < len(s.samples); i++ {
		s.samples[i] = Sample{}
	}
	s.samples = append(kept, fresh)
}

func consistent(existing, fresh Sample) bool {
	dimmer := existing.Brightness <= fresh.Brightness
	notDimmer := existing.Brightness >= fresh.Brightness

	switch compareLux(existing.Lux, fresh.Lux) {
	case darker:
		switch compareLuminance(existing.Luminance, fresh.Luminance) {
		case darker:
			return true
		default:
			return dimmer
		}
	case same:
		switch compareLuminance(existing.Luminance, fresh.Luminance) {
		case darker:
			return notDimmer
		case brighter:
			return dimmer
		default:
			return false
		}
	default:
		switch compareLuminance(existing.Luminance, fresh.Luminance) {
		case brighter:
			return true
		default:
			return notDimmer
		}
	}
}

// Predict interpolates the brightness for the given conditions. Each sample
// is weighted by the product of the distances from the query to every other
// sample, which is inverse-distance weighting without dividing by zero.
//
// A query that matches exactly one sample returns that sample's brightness.
// A query that matches several samples at once has no defined weighting and
// returns 0.
func (s *Store) Predict(lux uint64, luma Luminance) uint64 {
	switch len(s.samples) {
	case 0:
		return 0
	case 1:
		return s.samples[0].Brightness
	}

	distances := make([]float64, len(s.samples))
	exact := -1
	for i, sample := range s.samples {
		d := distance(lux, luma, sample)
		if d == 0 {
			if exact >= 0 {
				return 0
			}
			exact = i
		}
		distances[i] = d
	}
	if exact >= 0 {
		return s.samples[exact].Brightness
	}

	var weighted, total float64
	for i, sample := range s.samples {
		w := 1.0
		for j, d := range distances {
			if j != i {
				w *= d
			}
		}
		weighted += float64(sample.Brightness) * w
		total += w
	}

	prediction := weighted / total
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		// Products of many large distances overflow; 1/d weights are equal in
		// exact arithmetic and stay finite.
		prediction = inverseDistance(s.samples, distances)
	}

	return uint64(math.Floor(prediction))
}

func inverseDistance(samples []Sample, distances []float64) float64 {
	var weighted, total float64
	for i, sample := range samples {
		w := 1 / distances[i]
		weighted += float64(sample.Brightness) * w
		total += w
	}
	return weighted / total
}

func distance(lux uint64, luma Luminance, sample Sample) float64 {
	dx := float64(lux) - float64(sample.Lux)
	dy := luma.coordinate() - sample.Luminance.coordinate()
	return math.Sqrt(dx*dx + dy*dy)
}
