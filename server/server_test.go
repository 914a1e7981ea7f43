// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locacash/sitescore/analysis"
	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/provider"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
	"github.com/locacash/sitescore/store"
)

var fixedNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func sampleBundle() site.RawFactorBundle {
	return site.RawFactorBundle{
		PopulationDensity:  20.94,
		CompetingATMs:      1,
		CommercialActivity: 14,
		TrafficFlow:        1233,
		PublicTransport:    33,
		LandRate:           69237.54,
	}
}

type testEnv struct {
	router *gin.Engine
	server *Server
	cache  *cache.Cache
	repo   store.Repository
	calls  *atomic.Int32
}

// setupServerTest wires a server over an in-memory DuckDB store and a fake
// provider that fails for latitudes above 80.
func setupServerTest(t *testing.T, withRepo bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	c, err := cache.New(cache.WithMetrics(m))
	require.NoError(t, err)

	calls := &atomic.Int32{}
	prov := provider.Func(func(_ context.Context, p spatial.Point, _ float64) (site.RawFactorBundle, error) {
		calls.Add(1)

		if p.Lat > 80 {
			return site.RawFactorBundle{}, errors.New("overpass: all mirrors down")
		}

		return sampleBundle(), nil
	})

	svc := analysis.NewService(c, prov, analysis.Options{
		ProximityRadius: 20,
		Now:             func() time.Time { return fixedNow },
	})

	opts := Options{Metrics: m, Gatherer: reg, Now: func() time.Time { return fixedNow }}

	var repo store.Repository

	if withRepo {
		repo, err = store.OpenDuckDB("")
		require.NoError(t, err)
		require.NoError(t, repo.CreateSchema(context.Background()))
		t.Cleanup(func() { repo.Close() })

		opts.Repository = repo
		opts.Warm = func(ctx context.Context) (cache.LoadReport, error) {
			return (&cache.Loader{Cache: c}).Load(ctx, repo)
		}
	}

	s := New(svc, opts)

	return &testEnv{router: s.Handler(), server: s, cache: c, repo: repo, calls: calls}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())

	return out
}

func TestFetchDetailsAPI(t *testing.T) {
	env := setupServerTest(t, false)

	w := env.do(t, http.MethodPost, "/atm/v1/fetch_details", gin.H{"Location": []float64{13.0640, 80.2417}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first detailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.False(t, first.CacheHit)
	assert.Equal(t, "13.0640,80.2417", first.Key)
	assert.Equal(t, 1233, first.TrafficFlow)
	assert.Equal(t, site.SourceAPI, first.CacheSource)
	assert.True(t, fixedNow.Equal(first.Timestamp))

	w = env.do(t, http.MethodPost, "/atm/v1/fetch_details", gin.H{"Location": []float64{13.0640, 80.2417}})
	require.Equal(t, http.StatusOK, w.Code)

	var second detailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.True(t, second.CacheHit)
	assert.False(t, second.ProximityMatch)

	w = env.do(t, http.MethodPost, "/atm/v1/fetch_details", gin.H{"Location": []float64{13.0641, 80.2418}})
	require.Equal(t, http.StatusOK, w.Code)

	var near detailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &near))
	assert.True(t, near.CacheHit)
	assert.True(t, near.ProximityMatch)
	assert.Equal(t, "13.0640,80.2417", near.MatchedKey)
	assert.InDelta(t, 15.5, near.Distance, 0.5)
	assert.Equal(t, "13.0641,80.2418", near.Key)

	assert.Equal(t, int32(1), env.calls.Load(), "hits never reach the provider")
}

func TestFetchDetailsErrorsAPI(t *testing.T) {
	env := setupServerTest(t, false)

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantKind  string
		wantField string
	}{
		{"malformed", `{"Location":`, http.StatusBadRequest, "validation_error", ""},
		{"missing", gin.H{}, http.StatusBadRequest, "validation_error", "Location"},
		{"one component", gin.H{"Location": []float64{13}}, http.StatusBadRequest, "validation_error", "Location"},
		{"latitude out of range", gin.H{"Location": []float64{91, 0}}, http.StatusBadRequest, "invalid_coordinate", ""},
		{"provider down", gin.H{"Location": []float64{85, 10}}, http.StatusServiceUnavailable, "provider_unavailable", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/atm/v1/fetch_details", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantKind, body["kind"])

			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body["field"])
			}
		})
	}

	assert.Equal(t, 0, env.cache.Size(), "failures are never cached")
}

func TestGetScoreAPI(t *testing.T) {
	env := setupServerTest(t, false)
	report := sampleBundle().Report()

	w := env.do(t, http.MethodPost, "/atm/v1/get_score", gin.H{"location_data": report})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.InDelta(t, 93, body["overall_score"], 0)
	assert.Equal(t, "highly suitable", body["suitability"])

	weights := body["weights_used"].(map[string]any)
	assert.InDelta(t, 25, weights["population_density"], 1e-9)

	missing := report
	missing.TrafficFlow = nil

	w = env.do(t, http.MethodPost, "/atm/v1/get_score", gin.H{"location_data": missing})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "missing_factor", body["kind"])
	assert.Equal(t, "traffic_flow", body["field"])

	w = env.do(t, http.MethodPost, "/atm/v1/get_score", gin.H{
		"location_data": report,
		"weights":       gin.H{"population_density": -1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["kind"])

	w = env.do(t, http.MethodPost, "/atm/v1/get_score", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "location_data", decode(t, w)["field"])
}

func TestCacheRoutesAPI(t *testing.T) {
	env := setupServerTest(t, true)
	ctx := context.Background()

	for _, loc := range [][]float64{{13.0640, 80.2417}, {-34.9011, -56.1645}} {
		p := spatial.Point{Lat: loc[0], Lng: loc[1]}
		res, err := env.server.service.Score(sampleBundle().Report(), nil)
		require.NoError(t, err)
		require.NoError(t, env.repo.Save(ctx, store.NewAnalysis("u", p, sampleBundle(), res, fixedNow)))
	}

	report, err := (&cache.Loader{Cache: env.cache}).Load(ctx, env.repo)
	require.NoError(t, err)
	env.server.SetWarmReport(report)

	w := env.do(t, http.MethodGet, "/atm/v1/cache-status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode(t, w)["stats"].(map[string]any)
	assert.InDelta(t, 2, stats["size"], 0)
	assert.InDelta(t, 2, stats["database_loaded_locations"], 0)
	assert.Equal(t, "scan", stats["index"])

	w = env.do(t, http.MethodGet, "/atm/v1/cache-contents", nil)
	require.Equal(t, http.StatusOK, w.Code)

	contents := decode(t, w)
	assert.InDelta(t, 2, contents["count"], 0)
	assert.ElementsMatch(t, []any{"13.0640,80.2417", "-34.9011,-56.1645"}, contents["sample"])

	w = env.do(t, http.MethodPost, "/atm/v1/cache-reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.cache.Size())

	w = env.do(t, http.MethodPost, "/atm/v1/cache-reset?reload=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["reloaded"])
	assert.InDelta(t, 2, body["loaded"], 0)
	assert.Equal(t, 2, env.cache.Size())
}

func TestCacheContentsSampleIsCapped(t *testing.T) {
	env := setupServerTest(t, false)

	for i := range 8 {
		require.NoError(t, env.cache.Insert(spatial.Point{Lat: float64(i), Lng: float64(i)}, sampleBundle()))
	}

	contents := decode(t, env.do(t, http.MethodGet, "/atm/v1/cache-contents", nil))
	assert.InDelta(t, 8, contents["count"], 0)
	assert.Len(t, contents["sample"], 5)
}

func TestAnalysisRoutesAPI(t *testing.T) {
	env := setupServerTest(t, true)
	report := sampleBundle().Report()

	w := env.do(t, http.MethodPost, "/analysis/v1/save", gin.H{
		"user_id":       "user-1",
		"latitude":      13.0640,
		"longitude":     80.2417,
		"location_data": report,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var saved struct {
		Data store.SavedAnalysis `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.Data.ID)
	assert.Equal(t, 93, saved.Data.OverallScore)
	assert.Equal(t, "user-1", saved.Data.UserID)

	w = env.do(t, http.MethodGet, "/analysis/v1/history/user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = env.do(t, http.MethodGet, "/analysis/v1/history/nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodGet, "/analysis/v1/history/user-1?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/analysis/v1/favorite", gin.H{
		"analysis_id": saved.Data.ID, "user_id": "user-1", "is_favorite": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/analysis/v1/detail/"+saved.Data.ID+"/user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	detail := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, true, detail["is_favorite"])

	w = env.do(t, http.MethodGet, "/analysis/v1/detail/"+saved.Data.ID+"/user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/analysis/v1/favorite", gin.H{"analysis_id": "nope", "user_id": "user-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisSaveValidationAPI(t *testing.T) {
	env := setupServerTest(t, true)
	report := sampleBundle().Report()

	tests := []struct {
		name     string
		body     gin.H
		wantKind string
	}{
		{"no user", gin.H{"latitude": 1, "longitude": 1, "location_data": report}, "validation_error"},
		{"no latitude", gin.H{"user_id": "u", "longitude": 1, "location_data": report}, "validation_error"},
		{"bad coordinate", gin.H{"user_id": "u", "latitude": 100, "longitude": 1, "location_data": report}, "invalid_coordinate"},
		{"no factors", gin.H{"user_id": "u", "latitude": 1, "longitude": 1}, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/analysis/v1/save", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantKind, decode(t, w)["kind"])
		})
	}

	n, err := env.repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnalysisRoutesWithoutStorage(t *testing.T) {
	env := setupServerTest(t, false)

	w := env.do(t, http.MethodGet, "/analysis/v1/history/user-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupServerTest(t, false)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	env.do(t, http.MethodPost, "/atm/v1/fetch_details", gin.H{"Location": []float64{13.0640, 80.2417}})

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.String()
	assert.Contains(t, out, `sitescore_http_requests_total{method="GET",path="/healthz",status_code="200"} 1`)
	assert.Contains(t, out, `sitescore_http_requests_total{method="POST",path="/atm/v1/fetch_details",status_code="200"} 1`)
	assert.Contains(t, out, `sitescore_cache_lookups_total{result="miss"} 1`)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{site.InvalidCoordinate(errors.New("x")), http.StatusBadRequest},
		{site.Validationf("w", "bad"), http.StatusBadRequest},
		{site.MissingFactor(site.LandRate), http.StatusBadRequest},
		{site.ProviderUnavailable(errors.New("down")), http.StatusServiceUnavailable},
		{store.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
