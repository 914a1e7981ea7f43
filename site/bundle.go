// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package site

import (
	"math"
	"time"

	"github.com/locacash/sitescore/spatial"
)

// Factor names one of the six raw measurements of a site.
type Factor string

const (
	PopulationDensity  Factor = "population_density"
	CompetingATMs      Factor = "competing_atms"
	CommercialActivity Factor = "commercial_activity"
	TrafficFlow        Factor = "traffic_flow"
	PublicTransport    Factor = "public_transport"
	LandRate           Factor = "land_rate"
)

// Factors lists every factor in canonical order.
var Factors = []Factor{
	PopulationDensity,
	CompetingATMs,
	CommercialActivity,
	TrafficFlow,
	PublicTransport,
	LandRate,
}

// Valid reports whether f is one of the known factors.
func (f Factor) Valid() bool {
	for _, known := range Factors {
		if f == known {
			return true
		}
	}

	return false
}

// Source tells where a cached bundle came from.
type Source string

const (
	SourceAPI      Source = "api"
	SourceDatabase Source = "database"
	SourceStartup  Source = "startup"
)

// Provenance describes the origin of a bundle.
type Provenance struct {
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	// Owner is the key of the entry this one aliases, set when the bundle
	// was stored under a new key because of a proximity match.
	Owner *spatial.Key `json:"owner,omitempty"`
}

// RawFactorBundle holds the six factor measurements of one site.
type RawFactorBundle struct {
	PopulationDensity  float64    `json:"population_density"`
	CompetingATMs      int        `json:"competing_atms"`
	CommercialActivity int        `json:"commercial_activity"`
	TrafficFlow        int        `json:"traffic_flow"`
	PublicTransport    int        `json:"public_transport"`
	LandRate           float64    `json:"land_rate"`
	Provenance         Provenance `json:"provenance"`
}

// Clone returns a deep copy of b.
func (b RawFactorBundle) Clone() RawFactorBundle {
	out := b
	if b.Provenance.Owner != nil {
		owner := *b.Provenance.Owner
		out.Provenance.Owner = &owner
	}

	return out
}

// Validate rejects negative counts and negative or non-finite measurements.
func (b RawFactorBundle) Validate() error {
	if err := checkMeasure(PopulationDensity, b.PopulationDensity); err != nil {
		return err
	}

	counts := []struct {
		f Factor
		v int
	}{
		{CompetingATMs, b.CompetingATMs},
		{CommercialActivity, b.CommercialActivity},
		{TrafficFlow, b.TrafficFlow},
		{PublicTransport, b.PublicTransport},
	}
	for _, c := range counts {
		if c.v < 0 {
			return Validationf(string(c.f), "%s must not be negative (got %d)", c.f, c.v)
		}
	}

	return checkMeasure(LandRate, b.LandRate)
}

// Value returns factor f as a float.
func (b RawFactorBundle) Value(f Factor) float64 {
	switch f {
	case PopulationDensity:
		return b.PopulationDensity
	case CompetingATMs:
		return float64(b.CompetingATMs)
	case CommercialActivity:
		return float64(b.CommercialActivity)
	case TrafficFlow:
		return float64(b.TrafficFlow)
	case PublicTransport:
		return float64(b.PublicTransport)
	case LandRate:
		return b.LandRate
	}

	return 0
}

// Report converts b to its wire form with every factor present.
func (b RawFactorBundle) Report() FactorReport {
	ptr := func(v float64) *float64 { return &v }

	return FactorReport{
		PopulationDensity:  ptr(b.PopulationDensity),
		CompetingATMs:      ptr(float64(b.CompetingATMs)),
		CommercialActivity: ptr(float64(b.CommercialActivity)),
		TrafficFlow:        ptr(float64(b.TrafficFlow)),
		PublicTransport:    ptr(float64(b.PublicTransport)),
		LandRate:           ptr(b.LandRate),
	}
}

func checkMeasure(f Factor, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Validationf(string(f), "%s is not a finite number", f)
	}

	if v < 0 {
		return Validationf(string(f), "%s must not be negative (got %g)", f, v)
	}

	return nil
}

// FactorReport is a bundle as it arrives over the wire, with every factor
// optional.
type FactorReport struct {
	PopulationDensity  *float64 `json:"population_density"`
	CompetingATMs      *float64 `json:"competing_atms"`
	CommercialActivity *float64 `json:"commercial_activity"`
	TrafficFlow        *float64 `json:"traffic_flow"`
	PublicTransport    *float64 `json:"public_transport"`
	LandRate           *float64 `json:"land_rate"`
}

func (r FactorReport) field(f Factor) *float64 {
	switch f {
	case PopulationDensity:
		return r.PopulationDensity
	case CompetingATMs:
		return r.CompetingATMs
	case CommercialActivity:
		return r.CommercialActivity
	case TrafficFlow:
		return r.TrafficFlow
	case PublicTransport:
		return r.PublicTransport
	case LandRate:
		return r.LandRate
	}

	return nil
}

// Bundle converts the report. The first absent factor, in canonical order,
// yields a missing factor error; fractional or negative counts and
// non-finite values yield a validation error.
func (r FactorReport) Bundle() (RawFactorBundle, error) {
	for _, f := range Factors {
		if r.field(f) == nil {
			return RawFactorBundle{}, MissingFactor(f)
		}
	}

	count := func(f Factor) (int, error) {
		v := *r.field(f)
		if err := checkMeasure(f, v); err != nil {
			return 0, err
		}

		if v != math.Trunc(v) {
			return 0, Validationf(string(f), "%s must be a whole number (got %g)", f, v)
		}

		return int(v), nil
	}

	var (
		b   RawFactorBundle
		err error
	)

	b.PopulationDensity = *r.PopulationDensity
	if b.CompetingATMs, err = count(CompetingATMs); err != nil {
		return RawFactorBundle{}, err
	}

	if b.CommercialActivity, err = count(CommercialActivity); err != nil {
		return RawFactorBundle{}, err
	}

	if b.TrafficFlow, err = count(TrafficFlow); err != nil {
		return RawFactorBundle{}, err
	}

	if b.PublicTransport, err = count(PublicTransport); err != nil {
		return RawFactorBundle{}, err
	}

	b.LandRate = *r.LandRate

	if err := b.Validate(); err != nil {
		return RawFactorBundle{}, err
	}

	return b, nil
}
