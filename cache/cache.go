// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache keeps computed factor bundles keyed by canonical
// coordinates, with exact and bounded-radius proximity lookup.
package cache

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

// DefaultProximityRadius is the proximity radius, in meters, used when the
// configuration does not set one.
const DefaultProximityRadius = 25.0

type entry struct {
	key    spatial.Key
	point  spatial.Point
	bundle site.RawFactorBundle
	seq    uint64
}

// NearMatch is the outcome of a successful LookupNear.
type NearMatch struct {
	Key      spatial.Key          `json:"key"`
	Distance float64              `json:"distance_m"`
	Bundle   site.RawFactorBundle `json:"bundle"`
	Exact    bool                 `json:"exact"`
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Size      int       `json:"size"`
	Hits      uint64    `json:"hits"`
	Misses    uint64    `json:"misses"`
	NearHits  uint64    `json:"near_hits"`
	HitRatio  float64   `json:"hit_ratio"`
	Index     IndexKind `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// Cache is safe for concurrent use. Lookups share a read lock and only
// touch atomic counters; Insert and Reset are exclusive.
type Cache struct {
	mu      sync.RWMutex
	entries map[spatial.Key]*entry
	order   []spatial.Key
	index   spatialIndex
	nextSeq uint64

	hits     atomic.Uint64
	misses   atomic.Uint64
	nearHits atomic.Uint64

	createdAt time.Time
	kind      IndexKind
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type options struct {
	kind       IndexKind
	resolution int
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*options)

// WithIndex selects the proximity index.
func WithIndex(kind IndexKind) Option {
	return func(o *options) { o.kind = kind }
}

// WithH3Resolution sets the cell resolution of the H3 index.
func WithH3Resolution(res int) Option {
	return func(o *options) { o.resolution = res }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an empty cache.
func New(opts ...Option) (*Cache, error) {
	o := options{
		kind:       IndexScan,
		resolution: DefaultH3Resolution,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	kind, err := ParseIndexKind(string(o.kind))
	if err != nil {
		return nil, err
	}

	var idx spatialIndex = &scanIndex{}

	if kind == IndexH3 {
		h, err := newH3Index(o.resolution)
		if err != nil {
			return nil, err
		}

		idx = h
	}

	return &Cache{
		entries:   make(map[spatial.Key]*entry),
		index:     idx,
		createdAt: o.now(),
		kind:      kind,
		logger:    o.logger,
		metrics:   o.metrics,
		now:       o.now,
	}, nil
}

// Insert stores b under the canonical form of p, replacing any bundle
// already held there. The original insertion position is kept.
func (c *Cache) Insert(p spatial.Point, b site.RawFactorBundle) error {
	if err := p.Validate(); err != nil {
		return site.InvalidCoordinate(err)
	}

	if err := b.Validate(); err != nil {
		return err
	}

	key := spatial.CanonicalKey(p)
	b = b.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.bundle = b

		return nil
	}

	e := &entry{key: key, point: key.Point(), bundle: b, seq: c.nextSeq}
	c.nextSeq++
	c.entries[key] = e
	c.order = append(c.order, key)
	c.index.add(e)
	c.metrics.SetEntries(len(c.entries))

	return nil
}

// LookupExact returns the bundle stored under the canonical form of p.
// Every call counts as exactly one hit or one miss.
func (c *Cache) LookupExact(p spatial.Point) (site.RawFactorBundle, bool, error) {
	if err := p.Validate(); err != nil {
		return site.RawFactorBundle{}, false, site.InvalidCoordinate(err)
	}

	key := spatial.CanonicalKey(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[key]; ok {
		c.recordHit(false)

		return e.bundle.Clone(), true, nil
	}

	c.recordMiss()

	return site.RawFactorBundle{}, false, nil
}

// LookupNear tries an exact lookup, then the stored entry closest to p
// whose great-circle distance is strictly below radius meters. Ties go to
// the entry inserted first. Every call counts as exactly one hit or miss;
// proximity hits are also counted as near hits.
func (c *Cache) LookupNear(p spatial.Point, radius float64) (NearMatch, bool, error) {
	if err := p.Validate(); err != nil {
		return NearMatch{}, false, site.InvalidCoordinate(err)
	}

	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return NearMatch{}, false, site.Validationf("radius", "radius must be a positive number of meters (got %g)", radius)
	}

	key := spatial.CanonicalKey(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[key]; ok {
		c.recordHit(false)

		return NearMatch{Key: key, Distance: p.Distance(e.point), Bundle: e.bundle.Clone(), Exact: true}, true, nil
	}

	var (
		best     *entry
		bestDist float64
	)

	for _, e := range c.index.candidates(p, radius) {
		d := p.Distance(e.point)
		if d >= radius {
			continue
		}

		if best == nil || d < bestDist || (d == bestDist && e.seq < best.seq) {
			best, bestDist = e, d
		}
	}

	if best == nil {
		c.recordMiss()

		return NearMatch{}, false, nil
	}

	c.recordHit(true)

	return NearMatch{Key: best.key, Distance: bestDist, Bundle: best.bundle.Clone()}, true, nil
}

// Peek is LookupExact without touching the counters. Invalid coordinates
// are reported as absent.
func (c *Cache) Peek(p spatial.Point) (site.RawFactorBundle, bool) {
	if p.Validate() != nil {
		return site.RawFactorBundle{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[spatial.CanonicalKey(p)]; ok {
		return e.bundle.Clone(), true
	}

	return site.RawFactorBundle{}, false
}

func (c *Cache) recordHit(near bool) {
	c.hits.Add(1)

	if near {
		c.nearHits.Add(1)
		c.metrics.RecordLookup("near_hit")

		return
	}

	c.metrics.RecordLookup("exact_hit")
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	c.metrics.RecordLookup("miss")
}

// Size returns the number of distinct canonical keys.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ratio(c.hits.Load(), c.misses.Load())
}

func ratio(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}

	return float64(hits) / float64(total)
}

// Stats returns the counters and size as one consistent view.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()

	return Stats{
		Size:      len(c.entries),
		Hits:      hits,
		Misses:    misses,
		NearHits:  c.nearHits.Load(),
		HitRatio:  ratio(hits, misses),
		Index:     c.kind,
		CreatedAt: c.createdAt,
	}
}

// Snapshot returns the stored keys in insertion order.
func (c *Cache) Snapshot() []spatial.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]spatial.Key, len(c.order))
	copy(out, c.order)

	return out
}

// Entries returns a copy of every stored bundle keyed by canonical key.
func (c *Cache) Entries() map[spatial.Key]site.RawFactorBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[spatial.Key]site.RawFactorBundle, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.bundle.Clone()
	}

	return out
}

// Reset drops every entry and zeroes the counters.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.entries)

	c.entries = make(map[spatial.Key]*entry)
	c.order = nil
	c.nextSeq = 0
	c.index.reset()
	c.hits.Store(0)
	c.misses.Store(0)
	c.nearHits.Store(0)
	c.createdAt = c.now()
	c.metrics.SetEntries(0)

	c.logger.Info("cache reset", zap.Int("dropped", dropped))
}
