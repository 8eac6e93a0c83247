package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/pipeline"
	"github.com/birdlens/birdlens/internal/species"
)

// Form field names of POST /api/v1/identifications.
const (
	formImage  = "image"
	formRegion = "region"
)

// CollectionResponse is the body of GET /api/v1/collections/:owner.
type CollectionResponse struct {
	OwnerID string             `json:"ownerId"`
	Total   int64              `json:"total"`
	Entries []collection.Entry `json:"entries"`
}

// RegistryResponse is the body of GET /api/v1/registry/:region.
type RegistryResponse struct {
	RegionCode string                  `json:"regionCode"`
	Count      int                     `json:"count"`
	Species    []species.RegistryEntry `json:"species"`
}

// owner returns the authenticated owner id carried by the configured header.
func (s *Server) owner(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(s.config.OwnerHeader))
}

// identify handles POST /api/v1/identifications.
func (s *Server) identify(c echo.Context) error {
	owner := s.owner(c)
	if owner == "" {
		return s.handleError(c, nil, "missing_owner", "An authenticated owner is required.", http.StatusUnauthorized, "")
	}

	fh, err := c.FormFile(formImage)
	if err != nil {
		return s.handleError(c, err, "missing_image", "Attach a photo in the \"image\" form field.", http.StatusBadRequest, "")
	}
	if fh.Size > s.config.MaxUploadBytes {
		return s.handleError(c, nil, "image_too_large", "The photo is too large.", http.StatusRequestEntityTooLarge, "")
	}

	f, err := fh.Open()
	if err != nil {
		return s.handleError(c, err, "unreadable_upload", "The upload could not be read.", http.StatusBadRequest, "")
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	switch {
	case err != nil:
		return s.handleError(c, err, "unreadable_upload", "The upload could not be read.", http.StatusBadRequest, "")
	case int64(len(data)) > s.config.MaxUploadBytes:
		return s.handleError(c, nil, "image_too_large", "The photo is too large.", http.StatusRequestEntityTooLarge, "")
	case len(data) == 0:
		return s.handleError(c, nil, "empty_image", "The photo is empty.", http.StatusBadRequest, "")
	}
	if s.metrics != nil {
		s.metrics.HTTP.ObserveUploadSize(len(data))
	}

	outcome, err := s.runner.Run(c.Request().Context(), pipeline.Request{
		Image:      data,
		OwnerID:    owner,
		RegionCode: c.FormValue(formRegion),
	})
	if err != nil {
		kind, ok := pipeline.KindOf(err)
		if !ok {
			return s.handleError(c, err, "internal", pipeline.UserMessage(0), http.StatusInternalServerError, "")
		}
		message := pipeline.UserMessage(kind)
		var runID string
		if outcome != nil {
			runID = outcome.RunID
			if outcome.Message != "" {
				message = outcome.Message
			}
		}
		return s.handleError(c, err, kind.String(), message, statusForKind(kind), runID)
	}

	return c.JSON(http.StatusOK, outcome)
}

// listCollection handles GET /api/v1/collections/:owner. Owners can only read their own
// collection.
func (s *Server) listCollection(c echo.Context) error {
	caller := s.owner(c)
	if caller == "" {
		return s.handleError(c, nil, "missing_owner", "An authenticated owner is required.", http.StatusUnauthorized, "")
	}
	owner := c.Param("owner")
	if owner != caller {
		return s.handleError(c, nil, "forbidden", "You can only view your own collection.", http.StatusForbidden, "")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return s.handleError(c, err, "invalid_limit", "limit must be a non-negative integer.", http.StatusBadRequest, "")
		}
		limit = n
	}

	ctx := c.Request().Context()
	entries, err := s.collection.List(ctx, owner, limit)
	if err != nil {
		return s.handleError(c, err, "collection_unavailable", "Your collection could not be loaded. Please try again.", http.StatusInternalServerError, "")
	}
	total, err := s.collection.Count(ctx, owner)
	if err != nil {
		return s.handleError(c, err, "collection_unavailable", "Your collection could not be loaded. Please try again.", http.StatusInternalServerError, "")
	}
	if entries == nil {
		entries = []collection.Entry{}
	}

	return c.JSON(http.StatusOK, CollectionResponse{OwnerID: owner, Total: total, Entries: entries})
}

// getRegistry handles GET /api/v1/registry/:region.
func (s *Server) getRegistry(c echo.Context) error {
	region := strings.TrimSpace(c.Param("region"))
	ctx := c.Request().Context()

	entries, err := s.registry.FetchRegistry(ctx, region)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return s.handleError(c, err, pipeline.KindCancelled.String(), pipeline.UserMessage(pipeline.KindCancelled), http.StatusRequestTimeout, "")
		}
		return s.handleError(c, err, pipeline.KindRegistryFetch.String(), pipeline.UserMessage(pipeline.KindRegistryFetch), http.StatusBadGateway, "")
	}

	if entries == nil {
		entries = []species.RegistryEntry{}
	}

	s.log.WithContext(ctx).Debug("registry served",
		logger.String("region", region),
		logger.Int("species", len(entries)))

	return c.JSON(http.StatusOK, RegistryResponse{RegionCode: region, Count: len(entries), Species: entries})
}
