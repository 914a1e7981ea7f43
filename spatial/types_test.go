// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		same bool
	}{
		{"identical", Point{13.0827, 80.2707}, Point{13.0827, 80.2707}, true},
		{"sub-tolerance difference", Point{13.0827, 80.2707}, Point{13.0827004, 80.2706996}, true},
		{"rounds to same key", Point{13.08274, 80.27071}, Point{13.08266, 80.27069}, true},
		{"next step", Point{13.0827, 80.2707}, Point{13.0828, 80.2707}, false},
		{"negative coordinates", Point{-34.9011, -56.1645}, Point{-34.90110001, -56.16449999}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, CanonicalKey(tt.a) == CanonicalKey(tt.b))
		})
	}
}

func TestKeyPointAndString(t *testing.T) {
	k := CanonicalKey(Point{Lat: 13.06404, Lng: 80.24171})
	assert.Equal(t, Key{LatE4: 130640, LngE4: 802417}, k)
	assert.InDelta(t, 13.064, k.Point().Lat, 1e-9)
	assert.InDelta(t, 80.2417, k.Point().Lng, 1e-9)
	assert.Equal(t, "13.0640,80.2417", k.String())

	neg := CanonicalKey(Point{Lat: -34.9, Lng: -56.16})
	assert.Equal(t, "-34.9000,-56.1600", neg.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Point
		wantErr bool
	}{
		{"valid", Point{13.08, 80.27}, false},
		{"poles and antimeridian", Point{90, -180}, false},
		{"lat too high", Point{90.0001, 0}, true},
		{"lng too low", Point{0, -180.5}, true},
		{"nan lat", Point{math.NaN(), 0}, true},
		{"inf lng", Point{0, math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	a := Point{Lat: 13.0640, Lng: 80.2417}
	b := Point{Lat: 13.0641, Lng: 80.2417}

	d := a.Distance(b)
	assert.InDelta(t, 11.12, d, 0.05)
	assert.InDelta(t, d, b.Distance(a), 1e-9)
	assert.Zero(t, a.Distance(a))

	diagonal := Point{Lat: 13.0641, Lng: 80.2418}
	assert.InDelta(t, 15.5, a.Distance(diagonal), 0.1)

	far := Point{Lat: 13.0640 + 5000.0/111195.0, Lng: 80.2417}
	assert.InDelta(t, 5000, a.Distance(far), 1)

	antipode := Point{Lat: -13.0640, Lng: 80.2417 - 180}
	assert.InDelta(t, math.Pi*earthRadius, a.Distance(antipode), 1)
}
