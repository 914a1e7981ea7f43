// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/locacash/sitescore/site"
)

// RecordSource yields historical records one at a time. Returning an
// error from fn stops the iteration and is returned by Each.
type RecordSource interface {
	Each(ctx context.Context, fn func(site.HistoricalRecord) error) error
}

// LoadReport summarizes a warm start.
type LoadReport struct {
	Loaded   int           `json:"loaded"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Loader fills a cache from a RecordSource.
type Loader struct {
	Cache  *Cache
	Source site.Source
	Logger *zap.Logger
	// Progress, when set, is called after every record.
	Progress func(loaded, skipped int)
}

// Load inserts every well-formed record of src. Malformed records are
// skipped, counted and logged; they never abort the load. Errors from src
// itself or a cancelled ctx do.
func (l *Loader) Load(ctx context.Context, src RecordSource) (LoadReport, error) {
	logger := l.Logger
	if logger == nil {
		logger = l.Cache.logger
	}

	source := l.Source
	if source == "" {
		source = site.SourceDatabase
	}

	var report LoadReport

	start := l.Cache.now()

	err := src.Each(ctx, func(r site.HistoricalRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.insert(r, source); err != nil {
			report.Skipped++
			l.Cache.metrics.RecordWarmStart("skipped")
			logger.Warn("skipping historical record",
				zap.Int("index", report.Loaded+report.Skipped-1),
				zap.Stringer("kind", site.KindOf(err)),
				zap.Error(err))
		} else {
			report.Loaded++
			l.Cache.metrics.RecordWarmStart("loaded")
		}

		if l.Progress != nil {
			l.Progress(report.Loaded, report.Skipped)
		}

		return nil
	})

	report.Duration = l.Cache.now().Sub(start)

	if err != nil {
		return report, fmt.Errorf("warm start aborted after %d records: %w", report.Loaded+report.Skipped, err)
	}

	logger.Info("warm start finished",
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("size", l.Cache.Size()),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (l *Loader) insert(r site.HistoricalRecord, source site.Source) error {
	p, err := r.Point()
	if err != nil {
		return err
	}

	b, err := r.Bundle(source, l.Cache.now())
	if err != nil {
		return err
	}

	return l.Cache.Insert(p, b)
}

// Records adapts an in-memory slice to a RecordSource.
type Records []site.HistoricalRecord

// Each implements RecordSource.
func (rs Records) Each(_ context.Context, fn func(site.HistoricalRecord) error) error {
	for _, r := range rs {
		if err := fn(r); err != nil {
			return err
		}
	}

	return nil
}
