package api

import (
	"context"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/ingest"
)

// uploadReportHandler accepts a multipart upload (file + patient_name)
// and starts the ingestion pipeline in the background, returning a job
// id the client polls via getJobHandler.
func (s *Server) uploadReportHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()

	patientName := c.FormValue("patient_name")
	if patientName == "" {
		return mapServiceError(apierr.NewValidationError("patient_name", "is required"))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return mapServiceError(apierr.NewValidationError("file", "is required"))
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		return mapServiceError(apierr.NewValidationError("file", "exceeds maximum upload size"))
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not open uploaded file")
	}
	defer f.Close()

	bytes, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}

	job := s.jobs.Create(user.ID)
	in := ingest.Input{
		Bytes:        bytes,
		MimeType:     fh.Header.Get("Content-Type"),
		OriginalName: fh.Filename,
		UserID:       user.ID,
		PatientName:  patientName,
	}
	go s.pipe.Run(context.Background(), job.ID, in)

	return c.JSON(http.StatusAccepted, job)
}

// getJobHandler reports the current progress/status of an ingestion job.
func (s *Server) getJobHandler(c *echo.Context) error {
	job, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		return mapServiceError(apierr.ErrNotFound)
	}
	return c.JSON(http.StatusOK, job)
}

// reprocessReportHandler re-runs OCR and analyte extraction against a
// report's already-stored artifact, replacing its lab results. The report
// lookup itself bypasses row-level security (reports aren't scoped by
// owner at the storage layer the way patients are), so ownership is
// checked explicitly against the report's patient before the job starts.
func (s *Server) reprocessReportHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()
	reportID := c.Param("id")

	report, err := s.reports.Get(c.Request().Context(), reportID)
	if err != nil {
		return mapServiceError(err)
	}
	if err := s.verifyPatientOwnership(c.Request().Context(), user.ID, report.PatientID); err != nil {
		return mapServiceError(err)
	}

	job := s.jobs.Create(user.ID)
	go s.pipe.Reprocess(context.Background(), job.ID, reportID)

	return c.JSON(http.StatusAccepted, job)
}
