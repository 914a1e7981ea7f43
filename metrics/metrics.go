// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors of the service. Every
// recording method is safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitescore"

var (
	httpDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	providerDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60}
)

// Metrics is the set of collectors registered by New.
type Metrics struct {
	CacheLookups     *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	WarmStartRecords *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (exact_hit, near_hit, miss).",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of canonical keys held by the cache.",
		}),
		WarmStartRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "warm_start_records_total",
			Help:      "Historical records processed during warm start by outcome.",
		}, []string{"outcome"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Factor provider requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Factor provider request duration.",
			Buckets:   providerDurationBuckets,
		}, []string{"endpoint"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   httpDurationBuckets,
		}, []string{"method", "path"}),
	}

	collectors := []prometheus.Collector{
		m.CacheLookups,
		m.CacheEntries,
		m.WarmStartRecords,
		m.ProviderRequests,
		m.ProviderDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordLookup counts one cache lookup.
func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}

	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetEntries publishes the cache size.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}

	m.CacheEntries.Set(float64(n))
}

// RecordWarmStart counts one warm start record by outcome (loaded, skipped).
func (m *Metrics) RecordWarmStart(outcome string) {
	if m == nil {
		return
	}

	m.WarmStartRecords.WithLabelValues(outcome).Inc()
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(endpoint string, success bool, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.ProviderRequests.WithLabelValues(endpoint, status).Inc()
	m.ProviderDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}

	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
