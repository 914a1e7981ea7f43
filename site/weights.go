// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package site

import (
	"math"
)

// WeightSet maps factors to non-negative relative weights. Factors missing
// from a supplied set weigh zero.
type WeightSet map[Factor]float64

// DefaultWeights returns the weights used when a caller supplies none.
func DefaultWeights() WeightSet {
	return WeightSet{
		PopulationDensity:  25,
		CompetingATMs:      20,
		CommercialActivity: 20,
		TrafficFlow:        15,
		PublicTransport:    10,
		LandRate:           10,
	}
}

// Normalize returns a copy of w scaled so the weights sum to 100, with an
// entry for every factor. A nil set normalizes the defaults.
func (w WeightSet) Normalize() (WeightSet, error) {
	if w == nil {
		w = DefaultWeights()
	}

	var peak float64

	for f, v := range w {
		if !f.Valid() {
			return nil, Validationf(string(f), "unknown factor %q", f)
		}

		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Validationf(string(f), "weight for %s is not a finite number", f)
		}

		if v < 0 {
			return nil, Validationf(string(f), "weight for %s must not be negative (got %g)", f, v)
		}

		peak = math.Max(peak, v)
	}

	if peak <= 0 {
		return nil, Validationf("weights", "weights must not sum to zero")
	}

	// Scaling by the largest weight keeps the total finite for any finite input.
	var total float64
	for _, v := range w {
		total += v / peak
	}

	out := make(WeightSet, len(Factors))
	for _, f := range Factors {
		out[f] = w[f] / peak / total * 100
	}

	return out, nil
}

// Sum adds up the weights.
func (w WeightSet) Sum() float64 {
	var total float64
	for _, v := range w {
		total += v
	}

	return total
}
