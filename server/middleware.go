// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/store"
)

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		elapsed := time.Since(start)
		status := ctx.Writer.Status()

		s.metrics.RecordHTTPRequest(ctx.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}

		if len(ctx.Errors) > 0 {
			fields = append(fields, zap.String("errors", ctx.Errors.String()))
		}

		if status >= http.StatusInternalServerError {
			s.logger.Error("request", fields...)
		} else {
			s.logger.Info("request", fields...)
		}
	}
}

func (s *Server) requireRepository(ctx *gin.Context) {
	if s.repo == nil {
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable,
			gin.H{"success": false, "error": "analysis storage is disabled"})

		return
	}

	ctx.Next()
}

// bind decodes the JSON body into req and validates it.
func (s *Server) bind(ctx *gin.Context, req any) error {
	if err := ctx.ShouldBindJSON(req); err != nil {
		return site.Validationf("", "malformed request body: %v", err)
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]

			return site.Validationf(fe.Field(), "%s failed the %q check", fe.Namespace(), fe.Tag())
		}

		return site.Validationf("", "%v", err)
	}

	return nil
}

func statusOf(err error) int {
	switch site.KindOf(err) {
	case site.KindInvalidCoordinate, site.KindValidation, site.KindMissingFactor:
		return http.StatusBadRequest
	case site.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	}

	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}

func (s *Server) fail(ctx *gin.Context, err error) {
	_ = ctx.Error(err)

	body := gin.H{"success": false, "error": err.Error()}

	if kind := site.KindOf(err); kind != site.KindUnknown {
		body["kind"] = kind.String()
	}

	if field := site.FieldOf(err); field != "" {
		body["field"] = field
	}

	ctx.JSON(statusOf(err), body)
}
