// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/analysis"
	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

const contentsSample = 5

type fetchDetailsRequest struct {
	Location []float64 `json:"Location" validate:"required,len=2"`
}

type detailsResponse struct {
	Latitude           float64     `json:"latitude"`
	Longitude          float64     `json:"longitude"`
	Key                string      `json:"key"`
	PopulationDensity  float64     `json:"population_density"`
	CompetingATMs      int         `json:"competing_atms"`
	CommercialActivity int         `json:"commercial_activity"`
	TrafficFlow        int         `json:"traffic_flow"`
	PublicTransport    int         `json:"public_transport"`
	LandRate           float64     `json:"land_rate"`
	CacheHit           bool        `json:"cache_hit"`
	ProximityMatch     bool        `json:"proximity_match"`
	Distance           float64     `json:"distance_m"`
	MatchedKey         string      `json:"matched_key,omitempty"`
	CacheSource        site.Source `json:"cache_source"`
	Timestamp          time.Time   `json:"timestamp"`
}

func newDetailsResponse(d *analysis.Details) detailsResponse {
	resp := detailsResponse{
		Latitude:           d.Point.Lat,
		Longitude:          d.Point.Lng,
		Key:                d.Key.String(),
		PopulationDensity:  d.Bundle.PopulationDensity,
		CompetingATMs:      d.Bundle.CompetingATMs,
		CommercialActivity: d.Bundle.CommercialActivity,
		TrafficFlow:        d.Bundle.TrafficFlow,
		PublicTransport:    d.Bundle.PublicTransport,
		LandRate:           d.Bundle.LandRate,
		CacheHit:           d.CacheHit,
		ProximityMatch:     d.ProximityMatch,
		Distance:           d.Distance,
		CacheSource:        d.Bundle.Provenance.Source,
		Timestamp:          d.Bundle.Provenance.Timestamp,
	}

	if d.MatchedKey != nil {
		resp.MatchedKey = d.MatchedKey.String()
	}

	return resp
}

func (s *Server) fetchDetails(ctx *gin.Context) {
	var req fetchDetailsRequest
	if err := s.bind(ctx, &req); err != nil {
		s.fail(ctx, err)

		return
	}

	p := spatial.Point{Lat: req.Location[0], Lng: req.Location[1]}

	d, err := s.service.FetchDetails(ctx.Request.Context(), p)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, newDetailsResponse(d))
}

type scoreRequest struct {
	LocationData *site.FactorReport `json:"location_data" validate:"required"`
	Weights      site.WeightSet     `json:"weights"`
}

func (s *Server) getScore(ctx *gin.Context) {
	var req scoreRequest
	if err := s.bind(ctx, &req); err != nil {
		s.fail(ctx, err)

		return
	}

	res, err := s.service.Score(*req.LocationData, req.Weights)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, res)
}

type cacheStatusResponse struct {
	cache.Stats
	DatabaseLoaded int `json:"database_loaded_locations"`
	SkippedRecords int `json:"skipped_records"`
}

func (s *Server) cacheStatus(ctx *gin.Context) {
	load := s.warmReport()

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": cacheStatusResponse{
			Stats:          s.service.Cache().Stats(),
			DatabaseLoaded: load.Loaded,
			SkippedRecords: load.Skipped,
		},
	})
}

func (s *Server) cacheContents(ctx *gin.Context) {
	keys := s.service.Cache().Snapshot()

	sample := make([]string, 0, contentsSample)
	for i := 0; i < len(keys) && i < contentsSample; i++ {
		sample = append(sample, keys[i].String())
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(keys),
		"sample":  sample,
	})
}

func (s *Server) cacheReset(ctx *gin.Context) {
	reload, _ := strconv.ParseBool(ctx.DefaultQuery("reload", "false"))

	s.service.Cache().Reset()

	resp := gin.H{"success": true, "reloaded": false}

	if reload && s.warm != nil {
		report, err := s.warm(ctx.Request.Context())
		if err != nil {
			s.logger.Error("warm restart failed", zap.Error(err))
			s.fail(ctx, err)

			return
		}

		s.SetWarmReport(report)

		resp["reloaded"] = true
		resp["loaded"] = report.Loaded
		resp["skipped"] = report.Skipped
	}

	resp["size"] = s.service.Cache().Size()

	ctx.JSON(http.StatusOK, resp)
}
