// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locacash/sitescore/site"
)

// Set SITESCORE_TEST_POSTGRES_DSN to run against a disposable database.
func setupPostgres(t *testing.T) Repository {
	t.Helper()

	dsn := os.Getenv("SITESCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SITESCORE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()

	repo, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSchema(ctx))

	pg := repo.(*pgRepository)
	_, err = pg.db.ExecContext(ctx, `TRUNCATE analyses`)
	require.NoError(t, err)

	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestPostgresRepository(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := sampleAnalysis(t, "pg-user", 13.0640, 80.2417, base)
	b := sampleAnalysis(t, "pg-user", 13.0827, 80.2707, base.Add(time.Hour))

	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	got, err := repo.Get(ctx, a.ID, "pg-user")
	require.NoError(t, err)
	assert.Equal(t, a.Recommendations, got.Recommendations)
	assert.Equal(t, a.FactorScores, got.FactorScores)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))

	list, err := repo.ListByUser(ctx, "pg-user", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, repo.SetFavorite(ctx, b.ID, "pg-user", true))
	assert.ErrorIs(t, repo.SetFavorite(ctx, b.ID, "nobody", true), ErrNotFound)

	_, err = repo.Get(ctx, "missing", "pg-user")
	assert.ErrorIs(t, err, ErrNotFound)

	var records []site.HistoricalRecord

	require.NoError(t, repo.Each(ctx, func(r site.HistoricalRecord) error {
		records = append(records, r)

		return nil
	}))
	require.Len(t, records, 2)
	assert.InDelta(t, 13.0640, *records[0].Latitude, 1e-9)

	var seeds []SeedRecord

	require.NoError(t, repo.EachSeed(ctx, func(r SeedRecord) error {
		seeds = append(seeds, r)

		return nil
	}))
	require.Len(t, seeds, 2)
	assert.Equal(t, "pg-user", seeds[1].UserID)
	assert.True(t, seeds[1].IsFavorite)
	assert.InDelta(t, 100, seeds[1].Weights.Sum(), 1e-9)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
