// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the postgres driver

	"github.com/locacash/sitescore/site"
)

type pgRepository struct {
	db *sqlx.DB
}

// OpenPostgres connects to the database described by dsn.
func OpenPostgres(ctx context.Context, dsn string) (Repository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return NewPostgres(db), nil
}

// NewPostgres wraps an open sqlx handle using the postgres driver.
func NewPostgres(db *sqlx.DB) Repository {
	return &pgRepository{db: db}
}

func (r *pgRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			population_density DOUBLE PRECISION,
			competing_atms DOUBLE PRECISION,
			commercial_activity DOUBLE PRECISION,
			traffic_flow DOUBLE PRECISION,
			public_transport DOUBLE PRECISION,
			land_rate DOUBLE PRECISION,
			overall_score DOUBLE PRECISION,
			factor_scores JSONB,
			weights JSONB,
			recommendations JSONB,
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS analyses_user_idx ON analyses(user_id, created_at DESC);
	`)

	return err
}

func (r *pgRepository) Save(ctx context.Context, a *SavedAnalysis) error {
	row, err := rowOf(a)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (:id, :user_id, :latitude, :longitude,
			:population_density, :competing_atms, :commercial_activity, :traffic_flow, :public_transport, :land_rate,
			:overall_score, :factor_scores, :weights, :recommendations, :is_favorite, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("saving analysis %s: %w", a.ID, err)
	}

	return nil
}

func (r *pgRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*SavedAnalysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}

	if limit > 0 {
		q += ` LIMIT $2`

		args = append(args, limit)
	}

	var rows []*analysisRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
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

func (r *pgRepository) Get(ctx context.Context, id, userID string) (*SavedAnalysis, error) {
	var row analysisRow

	err := r.db.GetContext(ctx, &row,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading analysis %s: %w", id, err)
	}

	return row.analysis()
}

func (r *pgRepository) SetFavorite(ctx context.Context, id, userID string, favorite bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE analyses SET is_favorite = $1 WHERE id = $2 AND user_id = $3`, favorite, id, userID)
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

func (r *pgRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM analyses`)

	return n, err
}

func (r *pgRepository) each(ctx context.Context, fn func(*analysisRow) error) error {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+analysisColumns+` FROM analyses ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("reading analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row := &analysisRow{}
		if err := rows.StructScan(row); err != nil {
			return err
		}

		if err := fn(row); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (r *pgRepository) Each(ctx context.Context, fn func(site.HistoricalRecord) error) error {
	return r.each(ctx, func(row *analysisRow) error {
		return fn(row.record())
	})
}

func (r *pgRepository) EachSeed(ctx context.Context, fn func(SeedRecord) error) error {
	return r.each(ctx, func(row *analysisRow) error {
		s, err := row.seed()
		if err != nil {
			return err
		}

		return fn(s)
	})
}

func (r *pgRepository) Close() error {
	return r.db.Close()
}
