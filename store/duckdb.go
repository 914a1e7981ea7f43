// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/locacash/sitescore/site"
)

type duckRepository struct {
	db *sql.DB
}

// OpenDuckDB opens (or creates) the database file at path. An empty path
// opens an in-memory database.
func OpenDuckDB(path string) (Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb %q: %w", path, err)
	}

	return NewDuckDB(db), nil
}

// NewDuckDB wraps an open DuckDB handle.
func NewDuckDB(db *sql.DB) Repository {
	return &duckRepository{db: db}
}

func (r *duckRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			population_density DOUBLE,
			competing_atms DOUBLE,
			commercial_activity DOUBLE,
			traffic_flow DOUBLE,
			public_transport DOUBLE,
			land_rate DOUBLE,
			overall_score DOUBLE,
			factor_scores VARCHAR,
			weights VARCHAR,
			recommendations VARCHAR,
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS analyses_user_idx ON analyses(user_id);
	`)

	return err
}

func (r *duckRepository) Save(ctx context.Context, a *SavedAnalysis) error {
	row, err := rowOf(a)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO analyses (`+analysisColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.args()...)
	if err != nil {
		return fmt.Errorf("saving analysis %s: %w", a.ID, err)
	}

	return nil
}

func (r *duckRepository) query(ctx context.Context, query string, args ...any) ([]*analysisRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*analysisRow

	for rows.Next() {
		row := &analysisRow{}
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}

		out = append(out, row)
	}

	return out, rows.Err()
}

func (r *duckRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*SavedAnalysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}

	if limit > 0 {
		q += ` LIMIT ?`

		args = append(args, limit)
	}

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses of %s: %w", userID, err)
	}

	out := make([]*SavedAnalysis, 0, len(rows))

	for _, row := range rows {
		a, err := row.analysis()
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, nil
}

func (r *duckRepository) Get(ctx context.Context, id, userID string) (*SavedAnalysis, error) {
	row := &analysisRow{}

	err := r.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ? AND user_id = ?`, id, userID).
		Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading analysis %s: %w", id, err)
	}

	return row.analysis()
}

func (r *duckRepository) SetFavorite(ctx context.Context, id, userID string, favorite bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE analyses SET is_favorite = ? WHERE id = ? AND user_id = ?`, favorite, id, userID)
	if err != nil {
		return fmt.Errorf("updating analysis %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *duckRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n)

	return n, err
}

func (r *duckRepository) each(ctx context.Context, fn func(*analysisRow) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+analysisColumns+` FROM analyses ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("reading analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row := &analysisRow{}
		if err := rows.Scan(row.dest()...); err != nil {
			return err
		}

		if err := fn(row); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (r *duckRepository) Each(ctx context.Context, fn func(site.HistoricalRecord) error) error {
	return r.each(ctx, func(row *analysisRow) error {
		return fn(row.record())
	})
}

func (r *duckRepository) EachSeed(ctx context.Context, fn func(SeedRecord) error) error {
	return r.each(ctx, func(row *analysisRow) error {
		s, err := row.seed()
		if err != nil {
			return err
		}

		return fn(s)
	})
}

func (r *duckRepository) Close() error {
	return r.db.Close()
}
