// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/locacash/sitescore/metrics"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache maintenance",
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Runs a warm start without serving and prints the resulting statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
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
		}

		src := warmSource(repo, cfg)
		if src == nil {
			return errors.New("nothing to warm from: the store is disabled and no --seed-file was given")
		}

		report, err := newWarmer(c, src, repo)(ctx)
		if err != nil {
			return err
		}

		stats := c.Stats()
		out := cmd.OutOrStdout()

		printer.Fprintf(out, "Loaded:   %d\n", report.Loaded)
		printer.Fprintf(out, "Skipped:  %d\n", report.Skipped)
		printer.Fprintf(out, "Keys:     %d\n", stats.Size)
		printer.Fprintf(out, "Index:    %s\n", stats.Index)
		printer.Fprintf(out, "Duration: %v\n", report.Duration.Round(time.Millisecond))

		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheWarmCmd)
	rootCmd.AddCommand(cacheCmd)
}
