// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package analysis ties the cache, the factor provider and the scoring
// engine together: fetch-or-compute for a site, then score it.
package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/scoring"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

// FactorProvider produces the raw factors of the area around a point.
// Failures must be reported as errors, never as a zero bundle.
type FactorProvider interface {
	FetchFactors(ctx context.Context, p spatial.Point, radius float64) (site.RawFactorBundle, error)
}

// Options tunes a Service. Zero values take the defaults.
type Options struct {
	// SearchRadius is passed to the provider, in meters.
	SearchRadius float64
	// ProximityRadius bounds cache proximity matches, in meters. A negative
	// value disables proximity matching.
	ProximityRadius float64
	// FetchTimeout bounds a provider fetch. It is detached from the
	// request that started it, since other requests may be waiting on it.
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// DefaultFetchTimeout bounds a provider fetch when Options leaves it unset.
const DefaultFetchTimeout = 30 * time.Second

// Details is the outcome of FetchDetails.
type Details struct {
	Point          spatial.Point        `json:"point"`
	Key            spatial.Key          `json:"key"`
	Bundle         site.RawFactorBundle `json:"bundle"`
	CacheHit       bool                 `json:"cache_hit"`
	ProximityMatch bool                 `json:"proximity_match"`
	Distance       float64              `json:"distance_m"`
	MatchedKey     *spatial.Key         `json:"matched_key,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	cache           *cache.Cache
	provider        FactorProvider
	searchRadius    float64
	proximityRadius float64
	fetchTimeout    time.Duration
	group           singleflight.Group
	logger          *zap.Logger
	now             func() time.Time
}

// NewService wires a cache and a provider.
func NewService(c *cache.Cache, p FactorProvider, opts Options) *Service {
	s := &Service{
		cache:           c,
		provider:        p,
		searchRadius:    opts.SearchRadius,
		proximityRadius: opts.ProximityRadius,
		fetchTimeout:    opts.FetchTimeout,
		logger:          opts.Logger,
		now:             opts.Now,
	}

	if s.searchRadius <= 0 {
		s.searchRadius = 1500
	}

	if s.proximityRadius == 0 {
		s.proximityRadius = cache.DefaultProximityRadius
	}

	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Cache returns the cache the service reads and fills.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// FetchDetails returns the factors of p. A proximity match is stored under
// p's own key as an alias of the matched entry. On a miss the provider is
// called once per key no matter how many requests wait on it, and only a
// successful result is cached. Cancelling ctx abandons the wait but not the
// fetch, which keeps running for the other requests sharing it.
func (s *Service) FetchDetails(ctx context.Context, p spatial.Point) (*Details, error) {
	if err := p.Validate(); err != nil {
		return nil, site.InvalidCoordinate(err)
	}

	key := spatial.CanonicalKey(p)

	match, ok, err := s.lookup(p)
	if err != nil {
		return nil, err
	}

	if ok {
		d := &Details{Point: p, Key: key, Bundle: match.Bundle, CacheHit: true, Distance: match.Distance}
		if !match.Exact {
			if err := s.alias(p, match); err != nil {
				return nil, err
			}

			matched := match.Key
			d.ProximityMatch = true
			d.MatchedKey = &matched
		}

		return d, nil
	}

	ch := s.group.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		return s.fetch(fctx, p)
	})

	var res singleflight.Result

	select {
	case <-ctx.Done():
		return nil, site.ProviderUnavailable(ctx.Err())
	case res = <-ch:
	}

	if res.Err != nil {
		return nil, res.Err
	}

	if res.Shared {
		s.logger.Debug("joined in-flight fetch", zap.Stringer("key", key))
	}

	b := res.Val.(site.RawFactorBundle)

	return &Details{Point: p, Key: key, Bundle: b.Clone()}, nil
}

func (s *Service) lookup(p spatial.Point) (cache.NearMatch, bool, error) {
	if s.proximityRadius < 0 {
		b, ok, err := s.cache.LookupExact(p)

		return cache.NearMatch{Key: spatial.CanonicalKey(p), Bundle: b, Exact: true}, ok, err
	}

	return s.cache.LookupNear(p, s.proximityRadius)
}

func (s *Service) alias(p spatial.Point, match cache.NearMatch) error {
	root := match.Key
	if match.Bundle.Provenance.Owner != nil {
		root = *match.Bundle.Provenance.Owner
	}

	b := match.Bundle.Clone()
	b.Provenance.Owner = &root

	s.logger.Debug("proximity match",
		zap.Stringer("key", spatial.CanonicalKey(p)),
		zap.Stringer("matched", match.Key),
		zap.Float64("distance_m", match.Distance))

	return s.cache.Insert(p, b)
}

func (s *Service) fetch(ctx context.Context, p spatial.Point) (site.RawFactorBundle, error) {
	// A flight for this key may have finished between our lookup and Do.
	if b, ok := s.cache.Peek(p); ok {
		return b, nil
	}

	b, err := s.provider.FetchFactors(ctx, p, s.searchRadius)
	if err != nil {
		if site.KindOf(err) == site.KindUnknown {
			err = site.ProviderUnavailable(err)
		}

		s.logger.Warn("factor fetch failed", zap.Stringer("point", p), zap.Error(err))

		return site.RawFactorBundle{}, err
	}

	if b.Provenance.Source == "" {
		b.Provenance.Source = site.SourceAPI
	}

	if b.Provenance.Timestamp.IsZero() {
		b.Provenance.Timestamp = s.now()
	}

	if err := s.cache.Insert(p, b); err != nil {
		return site.RawFactorBundle{}, err
	}

	return b, nil
}

// Score evaluates a wire report under w, nil meaning the default weights.
func (s *Service) Score(r site.FactorReport, w site.WeightSet) (*scoring.Result, error) {
	return scoring.ScoreReport(r, w)
}
