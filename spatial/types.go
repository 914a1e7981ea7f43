// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds coordinates, their canonical keys and distances.
package spatial

import (
	"errors"
	"fmt"
	"math"
)

const (
	// earthRadius is the mean Earth radius in meters.
	earthRadius = 6371e3

	// keyScale is the number of canonical steps per degree (4 decimals).
	keyScale = 1e4
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lat, p.Lng)
}

// Validate reports whether p is a usable coordinate: both components
// finite, latitude in [-90, 90] and longitude in [-180, 180].
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return errors.New("latitude is not a finite number")
	}

	if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return errors.New("longitude is not a finite number")
	}

	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p.Lat)
	}

	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p.Lng)
	}

	return nil
}

// Distance is the great-circle (haversine) distance to q in meters.
func (p Point) Distance(q Point) float64 {
	lat1 := radians(p.Lat)
	lat2 := radians(q.Lat)
	dLat := radians(q.Lat - p.Lat)
	dLng := radians(q.Lng - p.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push a past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return 2 * earthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Key is the canonical form of a coordinate: each component rounded to
// four decimal places and stored as integer ten-thousandths of a degree.
// Two coordinates map to the same Key iff their rounded forms are equal.
type Key struct {
	LatE4 int64 `json:"lat_e4"`
	LngE4 int64 `json:"lng_e4"`
}

// CanonicalKey rounds p to four decimals. The point is not validated.
func CanonicalKey(p Point) Key {
	return Key{
		LatE4: int64(math.Round(p.Lat * keyScale)),
		LngE4: int64(math.Round(p.Lng * keyScale)),
	}
}

// Point returns the rounded coordinate the key stands for.
func (k Key) Point() Point {
	return Point{Lat: float64(k.LatE4) / keyScale, Lng: float64(k.LngE4) / keyScale}
}

// String formats the key as "lat,lng" with four decimals.
func (k Key) String() string {
	p := k.Point()

	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}
