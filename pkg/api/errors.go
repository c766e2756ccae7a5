package api

import (
	"errors"
	"log/slog"

	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/chat"
	"github.com/labtrace/labtrace/pkg/insight"
	"github.com/labtrace/labtrace/pkg/store"
)

// mapServiceError translates a service-layer error into an
// *echo.HTTPError, logging anything that falls through to a 500 so an
// unrecognized error shape is visible in the logs rather than just a
// generic response.
func mapServiceError(err error) *echo.HTTPError {
	var verr *apierr.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(400, verr.Error())
	case errors.Is(err, apierr.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, chat.ErrPatientNotFound), errors.Is(err, insight.ErrNoData):
		return echo.NewHTTPError(404, err.Error())
	case errors.Is(err, apierr.ErrAlreadyExists):
		return echo.NewHTTPError(409, err.Error())
	case errors.Is(err, apierr.ErrConflict):
		return echo.NewHTTPError(409, err.Error())
	case errors.Is(err, apierr.ErrBusy), errors.Is(err, chat.ErrSessionBusy):
		return echo.NewHTTPError(409, err.Error())
	case errors.Is(err, apierr.ErrForbidden), errors.Is(err, chat.ErrForbidden):
		return echo.NewHTTPError(403, err.Error())
	default:
		slog.Error("unhandled service error", "error", err)
		return echo.NewHTTPError(500, "internal error")
	}
}
