// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package site

import (
	"errors"
	"time"

	"github.com/locacash/sitescore/spatial"
)

var errMissingCoordinate = errors.New("latitude or longitude is missing")

// HistoricalRecord is a previously analyzed site as read back from
// storage. Columns may be null, in which case the record cannot be used.
type HistoricalRecord struct {
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	PopulationDensity  *float64   `json:"population_density"`
	CompetingATMs      *float64   `json:"competing_atms"`
	CommercialActivity *float64   `json:"commercial_activity"`
	TrafficFlow        *float64   `json:"traffic_flow"`
	PublicTransport    *float64   `json:"public_transport"`
	LandRate           *float64   `json:"land_rate"`
	OverallScore       *float64   `json:"overall_score,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
}

// Point returns the record location, failing when a component is null or
// out of range.
func (r HistoricalRecord) Point() (spatial.Point, error) {
	if r.Latitude == nil || r.Longitude == nil {
		return spatial.Point{}, InvalidCoordinate(errMissingCoordinate)
	}

	p := spatial.Point{Lat: *r.Latitude, Lng: *r.Longitude}
	if err := p.Validate(); err != nil {
		return spatial.Point{}, InvalidCoordinate(err)
	}

	return p, nil
}

// Bundle converts the record factors, tagging the result with source. The
// timestamp is the record creation time when known, otherwise now.
func (r HistoricalRecord) Bundle(source Source, now time.Time) (RawFactorBundle, error) {
	report := FactorReport{
		PopulationDensity:  r.PopulationDensity,
		CompetingATMs:      r.CompetingATMs,
		CommercialActivity: r.CommercialActivity,
		TrafficFlow:        r.TrafficFlow,
		PublicTransport:    r.PublicTransport,
		LandRate:           r.LandRate,
	}

	b, err := report.Bundle()
	if err != nil {
		return RawFactorBundle{}, err
	}

	ts := now
	if r.CreatedAt != nil {
		ts = *r.CreatedAt
	}

	b.Provenance = Provenance{Source: source, Timestamp: ts}

	return b, nil
}
