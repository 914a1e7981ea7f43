// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
	"github.com/locacash/sitescore/store"
)

const defaultHistoryLimit = 50

type saveRequest struct {
	UserID       string             `json:"user_id" validate:"required"`
	Latitude     *float64           `json:"latitude" validate:"required"`
	Longitude    *float64           `json:"longitude" validate:"required"`
	LocationData *site.FactorReport `json:"location_data" validate:"required"`
	Weights      site.WeightSet     `json:"weights"`
}

// saveAnalysis rescores the submitted factors so stored scores always match
// the stored inputs.
func (s *Server) saveAnalysis(ctx *gin.Context) {
	var req saveRequest
	if err := s.bind(ctx, &req); err != nil {
		s.fail(ctx, err)

		return
	}

	p := spatial.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	if err := p.Validate(); err != nil {
		s.fail(ctx, site.InvalidCoordinate(err))

		return
	}

	b, err := req.LocationData.Bundle()
	if err != nil {
		s.fail(ctx, err)

		return
	}

	res, err := s.service.Score(*req.LocationData, req.Weights)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	a := store.NewAnalysis(req.UserID, p, b, res, s.now().UTC())
	if err := s.repo.Save(ctx.Request.Context(), a); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": a})
}

func (s *Server) history(ctx *gin.Context) {
	limit := defaultHistoryLimit

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(ctx, site.Validationf("limit", "limit must be a non-negative integer, got %q", raw))

			return
		}

		limit = n
	}

	list, err := s.repo.ListByUser(ctx.Request.Context(), ctx.Param("user_id"), limit)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	if list == nil {
		list = []*store.SavedAnalysis{}
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

func (s *Server) detail(ctx *gin.Context) {
	a, err := s.repo.Get(ctx.Request.Context(), ctx.Param("analysis_id"), ctx.Param("user_id"))
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": a})
}

type favoriteRequest struct {
	AnalysisID string `json:"analysis_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	IsFavorite bool   `json:"is_favorite"`
}

func (s *Server) favorite(ctx *gin.Context) {
	var req favoriteRequest
	if err := s.bind(ctx, &req); err != nil {
		s.fail(ctx, err)

		return
	}

	if err := s.repo.SetFavorite(ctx.Request.Context(), req.AnalysisID, req.UserID, req.IsFavorite); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": req})
}
