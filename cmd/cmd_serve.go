// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/analysis"
	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/server"
	"github.com/locacash/sitescore/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP API",
	Long: `Starts the HTTP API on --addr. Unless disabled, the cache is first warmed
from the analysis store (or from --seed-file when the store is disabled).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}

		c, err := newCache(cfg, m)
		if err != nil {
			return err
		}

		repo, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}

		if repo != nil {
			defer repo.Close()

			if cfg.WarmStart.SeedFile != "" {
				seeded, report, err := store.SeedIfEmpty(ctx, repo, cfg.WarmStart.SeedFile, cfg.WarmStart.SeedUser)
				if err != nil {
					return fmt.Errorf("seeding store: %w", err)
				}

				if seeded {
					logger.Info("store seeded",
						zap.String("file", cfg.WarmStart.SeedFile),
						zap.Int("imported", report.Imported),
						zap.Int("skipped", report.Skipped))
				}
			}
		}

		prov, err := newProvider(cfg, m)
		if err != nil {
			return err
		}

		svc := analysis.NewService(c, prov, analysis.Options{
			SearchRadius:    cfg.Provider.SearchRadius,
			ProximityRadius: cfg.Cache.ProximityRadius,
			FetchTimeout:    cfg.FetchTimeout(),
			Logger:          logger.Named("analysis"),
		})

		var warm server.WarmFunc

		if src := warmSource(repo, cfg); src != nil {
			warm = newWarmer(c, src, repo)
		}

		srv := server.New(svc, server.Options{
			Repository: repo,
			Warm:       warm,
			Logger:     logger.Named("http"),
			Metrics:    m,
			Gatherer:   reg,
		})

		if cfg.WarmStart.Enabled && warm != nil {
			report, err := warm(ctx)
			if err != nil {
				return err
			}

			srv.SetWarmReport(report)
			printer.Fprintf(os.Stderr, "Cache warmed with %d locations (%d skipped) in %v\n",
				report.Loaded, report.Skipped, report.Duration.Round(time.Millisecond))
		}

		return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("index", string(cache.IndexH3), "proximity index: scan or h3")
	flags.Float64("proximity-radius", cache.DefaultProximityRadius, "proximity match radius in meters, negative to disable")
	flags.Bool("warm-start", true, "warm the cache before serving")

	bindFlag(v, "server.addr", flags.Lookup("addr"))
	bindFlag(v, "cache.index", flags.Lookup("index"))
	bindFlag(v, "cache.proximity_radius", flags.Lookup("proximity-radius"))
	bindFlag(v, "warm_start.enabled", flags.Lookup("warm-start"))

	rootCmd.AddCommand(serveCmd)
}
