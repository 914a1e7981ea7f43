// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/locacash/sitescore/scoring"
	"github.com/locacash/sitescore/site"
)

// SeedData is the JSON seed file format.
type SeedData struct {
	Version     string       `json:"version"`
	LastUpdated time.Time    `json:"last_updated"`
	Records     []SeedRecord `json:"records"`
}

// SeedRecord is one seed file entry: a historical record plus, when it was
// exported from a store, the owner, favorite flag and weights of the
// analysis it came from.
type SeedRecord struct {
	site.HistoricalRecord

	UserID     string         `json:"user_id,omitempty"`
	IsFavorite bool           `json:"is_favorite,omitempty"`
	Weights    site.WeightSet `json:"weights,omitempty"`
}

// SeedFile reads historical records from a JSON seed file.
type SeedFile string

// Each implements the cache record source.
func (f SeedFile) Each(ctx context.Context, fn func(site.HistoricalRecord) error) error {
	return f.EachSeed(ctx, func(r SeedRecord) error {
		return fn(r.HistoricalRecord)
	})
}

// EachSeed yields the entries of the file in order.
func (f SeedFile) EachSeed(ctx context.Context, fn func(SeedRecord) error) error {
	seed, err := readSeed(string(f))
	if err != nil {
		return err
	}

	for _, r := range seed.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(r); err != nil {
			return err
		}
	}

	return nil
}

func readSeed(path string) (*SeedData, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	return &seed, nil
}

// ExportSeed writes every stored analysis to path as a seed file, keeping
// the owner, favorite flag and weights of each.
func ExportSeed(ctx context.Context, repo Repository, path string) (int, error) {
	seed := &SeedData{Version: "1.1", LastUpdated: time.Now().UTC()}

	err := repo.EachSeed(ctx, func(r SeedRecord) error {
		seed.Records = append(seed.Records, r)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("listing analyses: %w", err)
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	return len(seed.Records), nil
}

// ImportReport counts the outcome of ImportSeed.
type ImportReport struct {
	Imported int
	Skipped  int
}

// ImportSeed scores each usable seed record and saves it. Records keep the
// owner and weights they were exported with; records without an owner go to
// userID and records without weights use the defaults. Records that cannot
// be scored are skipped.
func ImportSeed(ctx context.Context, repo Repository, path, userID string, now time.Time) (ImportReport, error) {
	var report ImportReport

	err := SeedFile(path).EachSeed(ctx, func(r SeedRecord) error {
		p, err := r.Point()
		if err != nil {
			report.Skipped++

			return nil
		}

		b, err := r.Bundle(site.SourceStartup, now)
		if err != nil {
			report.Skipped++

			return nil
		}

		res, err := scoring.Score(b, r.Weights)
		if err != nil {
			report.Skipped++

			return nil
		}

		created := now
		if r.CreatedAt != nil {
			created = *r.CreatedAt
		}

		owner := r.UserID
		if owner == "" {
			owner = userID
		}

		a := NewAnalysis(owner, p, b, res, created)
		a.IsFavorite = r.IsFavorite

		if err := repo.Save(ctx, a); err != nil {
			return err
		}

		report.Imported++

		return nil
	})

	return report, err
}

// SeedIfEmpty imports path when the repository holds no analyses. A
// populated repository is left alone and the report is zero.
func SeedIfEmpty(ctx context.Context, repo Repository, path, userID string) (bool, ImportReport, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return false, ImportReport{}, fmt.Errorf("counting analyses: %w", err)
	}

	if count > 0 {
		return false, ImportReport{}, nil
	}

	report, err := ImportSeed(ctx, repo, path, userID, time.Now().UTC())
	if err != nil {
		return false, report, err
	}

	return true, report, nil
}
