// Package handler exposes the aggregation facade over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civic/internal/civic/models"
	"civic/pkg/domain"
	dErrors "civic/pkg/domain-errors"
	"civic/pkg/platform/httputil"
	"civic/pkg/requestcontext"
)

// Service is the part of the aggregation facade the handler needs.
type Service interface {
	Resolve(ctx context.Context, rawZip string, deadline time.Duration) (*models.Bundle, error)
	Invalidate(ctx context.Context, rawZip string) error
	InvalidateDistrict(ctx context.Context, level domain.Level, districtID string) error
}

// Handler wires resolution endpoints to the aggregation facade.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public lookup endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/jurisdictions/{zip}", h.HandleResolve)
}

// RegisterAdmin mounts the cache administration endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/cache/invalidate", h.HandleInvalidate)
}

// HandleResolve handles GET /v1/jurisdictions/{zip}?deadline=1500ms.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	zip := chi.URLParam(r, "zip")

	var deadline time.Duration
	if raw := r.URL.Query().Get("deadline"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "deadline must be a positive duration such as 1500ms"))
			return
		}
		deadline = d
	}

	bundle, err := h.service.Resolve(ctx, zip, deadline)
	if err != nil {
		h.logger.InfoContext(ctx, "resolve request failed",
			"request_id", requestID,
			"zip", zip,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "resolve request served",
		"request_id", requestID,
		"zip", zip,
		"outcome", bundle.Outcome,
		"cache_hit", bundle.CacheHit,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// HandleInvalidate handles POST /v1/admin/cache/invalidate.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InvalidateRequest](w, r, h.logger)
	if !ok {
		return
	}

	var (
		err    error
		target string
	)
	if req.ZipCode != "" {
		target = "zip:" + req.ZipCode
		err = h.service.Invalidate(ctx, req.ZipCode)
	} else {
		target = "district:" + req.parsedLevel.String() + ":" + req.DistrictID
		err = h.service.InvalidateDistrict(ctx, req.parsedLevel, req.DistrictID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "cache invalidation failed",
			"request_id", requestID,
			"target", target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "cache invalidated",
		"request_id", requestID,
		"target", target,
	)
	httputil.WriteJSON(w, http.StatusOK, InvalidateResponse{Invalidated: target})
}
