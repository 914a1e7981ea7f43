// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider fetches raw site factors from OpenStreetMap through the
// Overpass API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
	"github.com/locacash/sitescore/utils/httputils"
)

// DefaultEndpoints are tried in order until one answers.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://lz4.overpass-api.de/api/interpreter",
	"https://z.overpass-api.de/api/interpreter",
}

const (
	// DefaultSearchRadius is the survey radius in meters around a site.
	DefaultSearchRadius = 1500.0
	DefaultUserAgent    = "LocaCash ATM Analysis Tool"
	DefaultTimeout      = 30 * time.Second

	baseLandRate = 2000.0
)

// Config configures an Overpass provider.
type Config struct {
	Endpoints   []string
	Timeout     time.Duration
	UserAgent   string
	MaxParallel int
	// Trace, when set, receives a dump of every HTTP exchange.
	Trace io.Writer
}

type endpoint struct {
	url    string
	client *overpass.Client
}

// Overpass implements FetchFactors against one or more Overpass mirrors.
type Overpass struct {
	endpoints []endpoint
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewOverpass builds a provider. Zero config fields take the defaults.
func NewOverpass(cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Overpass, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	urls := cfg.Endpoints
	if len(urls) == 0 {
		urls = DefaultEndpoints
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}

	httpClient := httputils.NewClient(httputils.ClientOptions{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Trace:     cfg.Trace,
		DumpBody:  cfg.Trace != nil,
		Logger:    logger,
	})

	o := &Overpass{logger: logger, metrics: m}

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, errors.New("overpass endpoint must not be empty")
		}

		client := overpass.NewWithSettings(u, cfg.MaxParallel, httpClient)
		o.endpoints = append(o.endpoints, endpoint{url: u, client: &client})
	}

	return o, nil
}

// FetchFactors surveys the area of radius meters around p. When every
// endpoint fails the error is a provider unavailable error joining the
// individual failures.
func (o *Overpass) FetchFactors(ctx context.Context, p spatial.Point, radius float64) (site.RawFactorBundle, error) {
	if err := p.Validate(); err != nil {
		return site.RawFactorBundle{}, site.InvalidCoordinate(err)
	}

	if math.IsNaN(radius) || radius <= 0 {
		return site.RawFactorBundle{}, site.Validationf("radius", "search radius must be positive (got %g)", radius)
	}

	query := buildQuery(p, radius)

	var errs []error

	for _, ep := range o.endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		start := time.Now()
		res, err := query1(ctx, ep.client, query)
		o.metrics.RecordProviderRequest(ep.url, err == nil, time.Since(start))

		if err != nil {
			o.logger.Warn("overpass endpoint failed", zap.String("endpoint", ep.url), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ep.url, err))

			continue
		}

		b := countFactors(res, radius)
		b.Provenance = site.Provenance{Source: site.SourceAPI, Timestamp: time.Now().UTC()}

		o.logger.Debug("overpass factors",
			zap.String("endpoint", ep.url),
			zap.Stringer("point", p),
			zap.Int("nodes", len(res.Nodes)),
			zap.Int("ways", len(res.Ways)))

		return b, nil
	}

	return site.RawFactorBundle{}, site.ProviderUnavailable(errors.Join(errs...))
}

// query1 runs one query, giving up when ctx is done. The underlying
// request still finishes in the background, bounded by the client timeout.
func query1(ctx context.Context, client *overpass.Client, query string) (overpass.Result, error) {
	type outcome struct {
		res overpass.Result
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		res, err := client.Query(query)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return overpass.Result{}, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}

func buildQuery(p spatial.Point, radius float64) string {
	around := fmt.Sprintf("(around:%s,%s,%s)", formatFloat(radius), formatFloat(p.Lat), formatFloat(p.Lng))

	var sb strings.Builder

	sb.WriteString("[out:json];\n(\n")

	for _, filter := range []string{`["amenity"]`, `["amenity"="atm"]`, `["shop"]`, `["highway"]`, `["public_transport"]`} {
		for _, kind := range []string{"node", "way"} {
			fmt.Fprintf(&sb, "  %s%s%s;\n", kind, around, filter)
		}
	}

	sb.WriteString(");\nout body;\n")

	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// countFactors derives the bundle from the elements returned for a
// survey of the given radius. Nodes without tags are way members pulled in
// by the parser and are not counted.
func countFactors(res overpass.Result, radius float64) site.RawFactorBundle {
	var amenities, atms, shops, highways, transport int

	count := func(tags map[string]string) {
		if len(tags) == 0 {
			return
		}

		if v, ok := tags["amenity"]; ok {
			amenities++

			if v == "atm" {
				atms++
			}
		}

		if _, ok := tags["shop"]; ok {
			shops++
		}

		if _, ok := tags["highway"]; ok {
			highways++
		}

		if _, ok := tags["public_transport"]; ok {
			transport++
		}
	}

	for _, n := range res.Nodes {
		count(n.Tags)
	}

	for _, w := range res.Ways {
		count(w.Tags)
	}

	km := radius / 1000
	density := float64(amenities) / (math.Pi * km * km)
	land := baseLandRate + density*200 + float64(shops)*100 + float64(highways)*50

	return site.RawFactorBundle{
		PopulationDensity:  density,
		CompetingATMs:      atms,
		CommercialActivity: shops,
		TrafficFlow:        highways,
		PublicTransport:    transport,
		LandRate:           math.Round(land*100) / 100,
	}
}
