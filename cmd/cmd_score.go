// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/locacash/sitescore/analysis"
	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/scoring"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

var scoreWeights map[string]string

func parseWeights(raw map[string]string) (site.WeightSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	w := make(site.WeightSet, len(raw))

	for k, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, site.Validationf(k, "weight %s=%q is not a number", k, s)
		}

		w[site.Factor(k)] = f
	}

	return w, nil
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Scores factor reports read from stdin",
	Long: `Reads one JSON factor report per line and prints the scoring result.

$ echo '{"population_density":20.94,"competing_atms":1,"commercial_activity":14,"traffic_flow":1233,"public_transport":33,"land_rate":69237.54}' | sitescore score
{"overall_score":93,"suitability":"highly suitable",…}
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w, err := parseWeights(scoreWeights)
		if err != nil {
			return err
		}

		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter one factor report per line…")
		}

		return scoreLines(os.Stdin, cmd.OutOrStdout(), w)
	},
}

func scoreLines(in io.Reader, out io.Writer, w site.WeightSet) error {
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)

	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var report site.FactorReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			fmt.Fprintf(out, "line %d\t%q\n", line, err)

			continue
		}

		res, err := scoring.ScoreReport(report, w)
		if err != nil {
			fmt.Fprintf(out, "line %d\t%s\t%q\n", line, site.KindOf(err), err)

			continue
		}

		if err := enc.Encode(res); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <lat> <lng>",
	Short: "Fetches the factors of a site from Overpass and scores them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: %w", args[0], err)
		}

		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: %w", args[1], err)
		}

		w, err := parseWeights(scoreWeights)
		if err != nil {
			return err
		}

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
		}

		c, err := newCache(cfg, m)
		if err != nil {
			return err
		}

		prov, err := newProvider(cfg, m)
		if err != nil {
			return err
		}

		svc := analysis.NewService(c, prov, analysis.Options{
			SearchRadius: cfg.Provider.SearchRadius,
			FetchTimeout: cfg.FetchTimeout(),
			Logger:       logger.Named("analysis"),
		})

		d, err := svc.FetchDetails(cmd.Context(), spatial.Point{Lat: lat, Lng: lng})
		if err != nil {
			return err
		}

		res, err := scoring.Score(d.Bundle, w)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(struct {
			Key     string               `json:"key"`
			Factors site.RawFactorBundle `json:"factors"`
			Result  *scoring.Result      `json:"result"`
		}{d.Key.String(), d.Bundle, res})
	},
}

func init() {
	for _, c := range []*cobra.Command{scoreCmd, fetchCmd} {
		c.Flags().StringToStringVarP(&scoreWeights, "weight", "w", nil, "factor weights, e.g. -w population_density=30,land_rate=5")
		rootCmd.AddCommand(c)
	}
}
