// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordLookup("miss")
	m.RecordLookup("miss")
	m.RecordLookup("exact_hit")
	m.SetEntries(3)
	m.RecordWarmStart("skipped")
	m.RecordProviderRequest("https://overpass.example/api", false, 2*time.Second)
	m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("exact_hit")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.CacheEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.WarmStartRecords.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("https://overpass.example/api", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/healthz", "200")), 0)

	_, err = New(reg)
	assert.Error(t, err, "registering twice on the same registry must fail")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordLookup("miss")
		m.SetEntries(1)
		m.RecordWarmStart("loaded")
		m.RecordProviderRequest("x", true, time.Second)
		m.RecordHTTPRequest("GET", "/", 200, time.Second)
	})
}
