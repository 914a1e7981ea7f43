// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

func ptr(v float64) *float64 { return &v }

func record(lat, lng float64) site.HistoricalRecord {
	return site.HistoricalRecord{
		Latitude:           ptr(lat),
		Longitude:          ptr(lng),
		PopulationDensity:  ptr(1500),
		CompetingATMs:      ptr(2),
		CommercialActivity: ptr(9),
		TrafficFlow:        ptr(120),
		PublicTransport:    ptr(4),
		LandRate:           ptr(4500),
	}
}

func TestLoaderSkipsMalformedRecords(t *testing.T) {
	c := newCache(t)

	missingFactor := record(13.05, 80.25)
	missingFactor.TrafficFlow = nil

	nullLat := record(0, 0)
	nullLat.Latitude = nil

	negative := record(13.06, 80.26)
	negative.CompetingATMs = ptr(-1)

	created := time.Date(2024, 12, 24, 8, 0, 0, 0, time.UTC)
	dated := record(13.07, 80.27)
	dated.CreatedAt = &created

	records := Records{
		record(13.0827, 80.2707),
		missingFactor,
		nullLat,
		negative,
		dated,
		record(91, 0),
		record(13.08270001, 80.27070001),
	}

	var progress []int

	l := &Loader{Cache: c, Progress: func(loaded, skipped int) { progress = append(progress, loaded+skipped) }}

	report, err := l.Load(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, progress)
	assert.Equal(t, 2, c.Size(), "duplicate canonical keys collapse")

	got, ok, err := c.LookupExact(spatial.Point{Lat: 13.07, Lng: 80.27})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, site.SourceDatabase, got.Provenance.Source)
	assert.Equal(t, created, got.Provenance.Timestamp)
}

func TestLoaderTagsSource(t *testing.T) {
	c := newCache(t)
	l := &Loader{Cache: c, Source: site.SourceStartup}

	_, err := l.Load(context.Background(), Records{record(1, 2)})
	require.NoError(t, err)

	got, ok, err := c.LookupExact(spatial.Point{Lat: 1, Lng: 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, site.SourceStartup, got.Provenance.Source)
}

type failingSource struct {
	after int
	err   error
}

func (f failingSource) Each(_ context.Context, fn func(site.HistoricalRecord) error) error {
	for i := range f.after {
		if err := fn(record(float64(i), 1)); err != nil {
			return err
		}
	}

	return f.err
}

func TestLoaderPropagatesSourceErrors(t *testing.T) {
	c := newCache(t)
	boom := errors.New("connection reset")

	report, err := (&Loader{Cache: c}).Load(context.Background(), failingSource{after: 2, err: boom})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 2, c.Size())
}

func TestLoaderHonoursCancellation(t *testing.T) {
	c := newCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Loader{Cache: c}).Load(ctx, Records{record(1, 1)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Size())
}
