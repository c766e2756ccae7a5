package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/admin"
)

func (s *Server) listPendingAnalytesHandler(c *echo.Context) error {
	items, err := s.admin.ListPendingAnalytes(c.Request().Context(), 200)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) listUnmappedResultsHandler(c *echo.Context) error {
	items, err := s.admin.ListUnmappedResults(c.Request().Context(), 200)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type approvePendingAnalyteRequest struct {
	ExistingAnalyteID  string `json:"existing_analyte_id"`
	NewAnalyteName     string `json:"new_analyte_name"`
	NewAnalyteCategory string `json:"new_analyte_category"`
}

func (s *Server) approvePendingAnalyteHandler(c *echo.Context) error {
	reviewer := authFromContext(c).CurrentUser()

	var req approvePendingAnalyteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.admin.Approve(c.Request().Context(), admin.ApproveRequest{
		PendingID:          c.Param("id"),
		ReviewerID:         reviewer.ID,
		ExistingAnalyteID:  req.ExistingAnalyteID,
		NewAnalyteName:     req.NewAnalyteName,
		NewAnalyteCategory: req.NewAnalyteCategory,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) rejectPendingAnalyteHandler(c *echo.Context) error {
	reviewer := authFromContext(c).CurrentUser()
	if err := s.admin.Reject(c.Request().Context(), c.Param("id"), reviewer.ID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type resolveUnmappedResultRequest struct {
	AnalyteID string `json:"analyte_id"`
	AddAlias  bool   `json:"add_alias"`
	RawName   string `json:"raw_name"`
}

func (s *Server) resolveUnmappedResultHandler(c *echo.Context) error {
	var req resolveUnmappedResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.admin.ResolveUnmappedResult(c.Request().Context(), admin.ResolveUnmappedResultRequest{
		ResultID:  c.Param("id"),
		AnalyteID: req.AnalyteID,
		AddAlias:  req.AddAlias,
		RawName:   req.RawName,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
