// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/config"
	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/provider"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/store"
)

// printer formats counts with digit grouping.
var printer = message.NewPrinter(language.English)

// openStore returns nil when the store is disabled.
func openStore(ctx context.Context, c *config.Config) (store.Repository, error) {
	var (
		repo store.Repository
		err  error
	)

	switch c.Store.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverPostgres:
		repo, err = store.OpenPostgres(ctx, c.Store.DSN)
	default:
		if dir := filepath.Dir(c.Store.DSN); c.Store.DSN != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}

		repo, err = store.OpenDuckDB(c.Store.DSN)
	}

	if err != nil {
		return nil, err
	}

	if err := repo.CreateSchema(ctx); err != nil {
		repo.Close()

		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return repo, nil
}

func newCache(c *config.Config, m *metrics.Metrics) (*cache.Cache, error) {
	opts := append(c.CacheOptions(), cache.WithLogger(logger.Named("cache")), cache.WithMetrics(m))

	return cache.New(opts...)
}

func newProvider(c *config.Config, m *metrics.Metrics) (*provider.Overpass, error) {
	pc := c.ProviderOptions()
	if c.Provider.Trace {
		pc.Trace = os.Stderr
	}

	return provider.NewOverpass(pc, logger.Named("provider"), m)
}

// counter sizes the progress bar.
type counter interface {
	Count(ctx context.Context) (int, error)
}

// warmSource picks the records a warm start reads: the store when there is
// one, the seed file otherwise. It returns nil when there is neither.
func warmSource(repo store.Repository, c *config.Config) cache.RecordSource {
	if repo != nil {
		return repo
	}

	if c.WarmStart.SeedFile != "" {
		return store.SeedFile(c.WarmStart.SeedFile)
	}

	return nil
}

// newWarmer returns a function that loads src into c, drawing a progress bar
// on interactive terminals.
func newWarmer(c *cache.Cache, src cache.RecordSource, cnt counter) func(ctx context.Context) (cache.LoadReport, error) {
	return func(ctx context.Context) (cache.LoadReport, error) {
		if src == nil {
			return cache.LoadReport{}, errors.New("no warm start source configured")
		}

		loader := &cache.Loader{Cache: c, Logger: logger.Named("warm")}
		if _, ok := src.(store.SeedFile); ok {
			loader.Source = site.SourceStartup
		}

		if bar := newProgressBar(ctx, cnt, os.Stderr); bar != nil {
			defer bar.Finish()

			loader.Progress = func(loaded, skipped int) {
				_ = bar.Set(loaded + skipped)
			}
		}

		return loader.Load(ctx, src)
	}
}

func newProgressBar(ctx context.Context, cnt counter, w *os.File) *progressbar.ProgressBar {
	if !isatty.IsTerminal(w.Fd()) {
		return nil
	}

	total := -1

	if cnt != nil {
		if n, err := cnt.Count(ctx); err == nil {
			total = n
		} else {
			logger.Debug("counting records for progress", zap.Error(err))
		}
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Warming cache"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
