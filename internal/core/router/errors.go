package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/job"
	"github.com/mohammed-shakir/squadrats-grid/internal/poly"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// StatusFor maps an engine or lookup error to an HTTP status.
func StatusFor(err error) int {
	var (
		mge *contour.MalformedGeometryError
		ube *coverage.UnpairedBoundaryError
		fe  *poly.FormatError
		de  *poly.DomainError
		ife *poly.IncorrectFiletypeError
		tmt *job.TooManyTilesError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, region.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ube), errors.As(err, &tmt):
		return http.StatusUnprocessableEntity
	case errors.As(err, &mge), errors.As(err, &fe), errors.As(err, &de), errors.As(err, &ife),
		errors.Is(err, poly.ErrUnsupportedFormat), errors.Is(err, job.ErrUnknownFormat),
		errors.Is(err, tile.ErrInvalidZoom):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "status", status, "err", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	logger.WarnContext(ctx, "request rejected", "status", status, "err", err)
	http.Error(w, err.Error(), status)
}
