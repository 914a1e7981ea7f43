// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists saved site analyses and feeds them back to the
// cache warm start.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/locacash/sitescore/scoring"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

// ErrNotFound is returned when an analysis does not exist for the user.
var ErrNotFound = errors.New("analysis not found")

// SavedAnalysis is one scored site saved by a user.
type SavedAnalysis struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	Latitude           float64        `json:"latitude"`
	Longitude          float64        `json:"longitude"`
	PopulationDensity  float64        `json:"population_density"`
	CompetingATMs      int            `json:"competing_atms"`
	CommercialActivity int            `json:"commercial_activity"`
	TrafficFlow        int            `json:"traffic_flow"`
	PublicTransport    int            `json:"public_transport"`
	LandRate           float64        `json:"land_rate"`
	OverallScore       int            `json:"overall_score"`
	FactorScores       map[string]int `json:"factor_scores"`
	Weights            site.WeightSet `json:"weights"`
	Recommendations    []string       `json:"recommendations"`
	IsFavorite         bool           `json:"is_favorite"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewAnalysis builds a SavedAnalysis with a fresh ID.
func NewAnalysis(userID string, p spatial.Point, b site.RawFactorBundle, res *scoring.Result, now time.Time) *SavedAnalysis {
	a := &SavedAnalysis{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Latitude:           p.Lat,
		Longitude:          p.Lng,
		PopulationDensity:  b.PopulationDensity,
		CompetingATMs:      b.CompetingATMs,
		CommercialActivity: b.CommercialActivity,
		TrafficFlow:        b.TrafficFlow,
		PublicTransport:    b.PublicTransport,
		LandRate:           b.LandRate,
		CreatedAt:          now.UTC(),
	}

	if res != nil {
		a.OverallScore = res.OverallScore
		a.Weights = res.Weights
		a.Recommendations = res.Recommendations
		a.FactorScores = make(map[string]int, len(res.Factors))

		for f, s := range res.Factors {
			a.FactorScores[string(f)] = s.Score
		}
	}

	return a
}

// Point returns the analysis location.
func (a *SavedAnalysis) Point() spatial.Point {
	return spatial.Point{Lat: a.Latitude, Lng: a.Longitude}
}

// Bundle returns the saved raw factors.
func (a *SavedAnalysis) Bundle() site.RawFactorBundle {
	return site.RawFactorBundle{
		PopulationDensity:  a.PopulationDensity,
		CompetingATMs:      a.CompetingATMs,
		CommercialActivity: a.CommercialActivity,
		TrafficFlow:        a.TrafficFlow,
		PublicTransport:    a.PublicTransport,
		LandRate:           a.LandRate,
		Provenance:         site.Provenance{Source: site.SourceDatabase, Timestamp: a.CreatedAt},
	}
}

// Repository stores analyses. Each yields every stored analysis as a
// historical record, oldest first, for the cache warm start. EachSeed walks
// the same rows with their owner, favorite flag and weights.
type Repository interface {
	CreateSchema(ctx context.Context) error
	Save(ctx context.Context, a *SavedAnalysis) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*SavedAnalysis, error)
	Get(ctx context.Context, id, userID string) (*SavedAnalysis, error)
	SetFavorite(ctx context.Context, id, userID string, favorite bool) error
	Count(ctx context.Context) (int, error)
	Each(ctx context.Context, fn func(site.HistoricalRecord) error) error
	EachSeed(ctx context.Context, fn func(SeedRecord) error) error
	Close() error
}

const analysisColumns = `id, user_id, latitude, longitude,
	population_density, competing_atms, commercial_activity, traffic_flow, public_transport, land_rate,
	overall_score, factor_scores, weights, recommendations, is_favorite, created_at`

// analysisRow mirrors the analyses table. Factor columns are nullable
// because rows may predate the current schema.
type analysisRow struct {
	ID                 string          `db:"id"`
	UserID             string          `db:"user_id"`
	Latitude           sql.NullFloat64 `db:"latitude"`
	Longitude          sql.NullFloat64 `db:"longitude"`
	PopulationDensity  sql.NullFloat64 `db:"population_density"`
	CompetingATMs      sql.NullFloat64 `db:"competing_atms"`
	CommercialActivity sql.NullFloat64 `db:"commercial_activity"`
	TrafficFlow        sql.NullFloat64 `db:"traffic_flow"`
	PublicTransport    sql.NullFloat64 `db:"public_transport"`
	LandRate           sql.NullFloat64 `db:"land_rate"`
	OverallScore       sql.NullFloat64 `db:"overall_score"`
	FactorScores       sql.NullString  `db:"factor_scores"`
	Weights            sql.NullString  `db:"weights"`
	Recommendations    sql.NullString  `db:"recommendations"`
	IsFavorite         bool            `db:"is_favorite"`
	CreatedAt          time.Time       `db:"created_at"`
}

func (r *analysisRow) dest() []any {
	return []any{
		&r.ID, &r.UserID, &r.Latitude, &r.Longitude,
		&r.PopulationDensity, &r.CompetingATMs, &r.CommercialActivity, &r.TrafficFlow, &r.PublicTransport, &r.LandRate,
		&r.OverallScore, &r.FactorScores, &r.Weights, &r.Recommendations, &r.IsFavorite, &r.CreatedAt,
	}
}

func (r *analysisRow) args() []any {
	return []any{
		r.ID, r.UserID, r.Latitude, r.Longitude,
		r.PopulationDensity, r.CompetingATMs, r.CommercialActivity, r.TrafficFlow, r.PublicTransport, r.LandRate,
		r.OverallScore, r.FactorScores, r.Weights, r.Recommendations, r.IsFavorite, r.CreatedAt,
	}
}

func validFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func jsonString(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func rowOf(a *SavedAnalysis) (*analysisRow, error) {
	if a.ID == "" || a.UserID == "" {
		return nil, errors.New("analysis id and user id are required")
	}

	r := &analysisRow{
		ID:                 a.ID,
		UserID:             a.UserID,
		Latitude:           validFloat(a.Latitude),
		Longitude:          validFloat(a.Longitude),
		PopulationDensity:  validFloat(a.PopulationDensity),
		CompetingATMs:      validFloat(float64(a.CompetingATMs)),
		CommercialActivity: validFloat(float64(a.CommercialActivity)),
		TrafficFlow:        validFloat(float64(a.TrafficFlow)),
		PublicTransport:    validFloat(float64(a.PublicTransport)),
		LandRate:           validFloat(a.LandRate),
		OverallScore:       validFloat(float64(a.OverallScore)),
		IsFavorite:         a.IsFavorite,
		CreatedAt:          a.CreatedAt.UTC(),
	}

	var err error

	if r.FactorScores, err = jsonString(a.FactorScores); err != nil {
		return nil, fmt.Errorf("encoding factor scores: %w", err)
	}

	if r.Weights, err = jsonString(a.Weights); err != nil {
		return nil, fmt.Errorf("encoding weights: %w", err)
	}

	if r.Recommendations, err = jsonString(a.Recommendations); err != nil {
		return nil, fmt.Errorf("encoding recommendations: %w", err)
	}

	return r, nil
}

func (r *analysisRow) analysis() (*SavedAnalysis, error) {
	a := &SavedAnalysis{
		ID:                 r.ID,
		UserID:             r.UserID,
		Latitude:           r.Latitude.Float64,
		Longitude:          r.Longitude.Float64,
		PopulationDensity:  r.PopulationDensity.Float64,
		CompetingATMs:      int(r.CompetingATMs.Float64),
		CommercialActivity: int(r.CommercialActivity.Float64),
		TrafficFlow:        int(r.TrafficFlow.Float64),
		PublicTransport:    int(r.PublicTransport.Float64),
		LandRate:           r.LandRate.Float64,
		OverallScore:       int(r.OverallScore.Float64),
		IsFavorite:         r.IsFavorite,
		CreatedAt:          r.CreatedAt.UTC(),
	}

	decode := func(col sql.NullString, into any, name string) error {
		if !col.Valid || col.String == "" {
			return nil
		}

		if err := json.Unmarshal([]byte(col.String), into); err != nil {
			return fmt.Errorf("decoding %s of analysis %s: %w", name, r.ID, err)
		}

		return nil
	}

	if err := decode(r.FactorScores, &a.FactorScores, "factor scores"); err != nil {
		return nil, err
	}

	if err := decode(r.Weights, &a.Weights, "weights"); err != nil {
		return nil, err
	}

	if err := decode(r.Recommendations, &a.Recommendations, "recommendations"); err != nil {
		return nil, err
	}

	return a, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}

	f := v.Float64

	return &f
}

func (r *analysisRow) record() site.HistoricalRecord {
	created := r.CreatedAt.UTC()

	return site.HistoricalRecord{
		Latitude:           nullable(r.Latitude),
		Longitude:          nullable(r.Longitude),
		PopulationDensity:  nullable(r.PopulationDensity),
		CompetingATMs:      nullable(r.CompetingATMs),
		CommercialActivity: nullable(r.CommercialActivity),
		TrafficFlow:        nullable(r.TrafficFlow),
		PublicTransport:    nullable(r.PublicTransport),
		LandRate:           nullable(r.LandRate),
		OverallScore:       nullable(r.OverallScore),
		CreatedAt:          &created,
	}
}

func (r *analysisRow) seed() (SeedRecord, error) {
	s := SeedRecord{HistoricalRecord: r.record(), UserID: r.UserID, IsFavorite: r.IsFavorite}

	if r.Weights.Valid && r.Weights.String != "" {
		if err := json.Unmarshal([]byte(r.Weights.String), &s.Weights); err != nil {
			return SeedRecord{}, fmt.Errorf("decoding weights of analysis %s: %w", r.ID, err)
		}
	}

	return s, nil
}
