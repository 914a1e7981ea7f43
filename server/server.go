// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the site analysis service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/analysis"
	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/metrics"
	"github.com/locacash/sitescore/store"
)

// WarmFunc reloads the cache from persistent records.
type WarmFunc func(ctx context.Context) (cache.LoadReport, error)

// Options wires the optional collaborators of a Server.
type Options struct {
	// Repository backs the /analysis routes. Without it they answer 503.
	Repository store.Repository
	Warm       WarmFunc
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics. Without it the route is not registered.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Server struct {
	service  *analysis.Service
	repo     store.Repository
	warm     WarmFunc
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	validate *validator.Validate
	now      func() time.Time

	mu       sync.Mutex
	lastLoad cache.LoadReport
}

func New(svc *analysis.Service, opts Options) *Server {
	s := &Server{
		service:  svc,
		repo:     opts.Repository,
		warm:     opts.Warm,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		validate: newValidator(),
		now:      opts.Now,
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// SetWarmReport records the outcome of the last warm start.
func (s *Server) SetWarmReport(r cache.LoadReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLoad = r
}

func (s *Server) warmReport() cache.LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastLoad
}

// Handler builds the router.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthz)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	atm := r.Group("/atm/v1")
	atm.POST("/fetch_details", s.fetchDetails)
	atm.POST("/get_score", s.getScore)
	atm.GET("/cache-status", s.cacheStatus)
	atm.GET("/cache-contents", s.cacheContents)
	atm.POST("/cache-reset", s.cacheReset)

	analyses := r.Group("/analysis/v1")
	analyses.Use(s.requireRepository)
	analyses.POST("/save", s.saveAnalysis)
	analyses.GET("/history/:user_id", s.history)
	analyses.GET("/detail/:analysis_id/:user_id", s.detail)
	analyses.POST("/favorite", s.favorite)

	return r
}

// Run serves on addr until ctx is done, then drains in-flight requests for
// at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "cache_size": s.service.Cache().Size()})
}
