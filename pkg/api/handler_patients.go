package api

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5"
	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// listPatientsHandler returns every patient visible to the caller under
// row-level security — used by the chat UI's patient picker.
func (s *Server) listPatientsHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()

	var patients []*models.Patient
	err := s.store.WithUserScope(c.Request().Context(), user.ID, func(tx pgx.Tx) error {
		var err error
		patients, err = s.store.Patients.WithTx(tx).List(c.Request().Context(), 200)
		return err
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

// verifyPatientOwnership confirms patientID is visible to userID under row
// level security, so handlers that pass a patient id straight to a service
// that reads through the RLS-bypass store (insight.Generator) don't leak
// another user's patient data.
func (s *Server) verifyPatientOwnership(ctx context.Context, userID, patientID string) error {
	return s.store.WithUserScope(ctx, userID, func(tx pgx.Tx) error {
		_, err := s.store.Patients.WithTx(tx).Get(ctx, patientID)
		return err
	})
}
