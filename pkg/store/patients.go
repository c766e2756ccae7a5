package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// PatientStore is the repository for patients. db may be a *pgxpool.Pool or
// a pgx.Tx, so callers can compose patient writes into larger transactions.
type PatientStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx.
func (s *PatientStore) WithTx(tx pgx.Tx) *PatientStore {
	return &PatientStore{db: tx}
}

// UpsertByExternalID finds a patient by their source-document identifier,
// creating one if none exists. Used by C7 stage 6 (persist) so repeated
// reports for the same person attach to a single Patient row. ownerUserID
// is the uploading user and is immutable once a patient row exists.
func (s *PatientStore) UpsertByExternalID(ctx context.Context, ownerUserID, externalID, name string, dob *time.Time) (*models.Patient, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO patients (id, owner_user_id, external_id, name, dob)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, owner_user_id, external_id, name, dob, created_at, updated_at
	`, uuid.NewString(), ownerUserID, externalID, name, dob)
	return scanPatient(row)
}

// Get returns a patient by id.
func (s *PatientStore) Get(ctx context.Context, id string) (*models.Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_user_id, external_id, name, dob, created_at, updated_at
		FROM patients WHERE id = $1
	`, id)
	return scanPatient(row)
}

// List returns patients ordered by name, scoped by whatever row-level
// security policy is in effect on the calling connection (the caller's
// own patients under Store.WithUserScope, every patient under an
// admin-mode pool that bypasses RLS).
func (s *PatientStore) List(ctx context.Context, limit int) ([]*models.Patient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_user_id, external_id, name, dob, created_at, updated_at
		FROM patients ORDER BY name LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*models.Patient
	for rows.Next() {
		p, err := scanPatientRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*models.Patient, error) {
	var p models.Patient
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.ExternalID, &p.Name, &p.DOB, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

func scanPatientRows(rows pgx.Rows) (*models.Patient, error) {
	var p models.Patient
	if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.ExternalID, &p.Name, &p.DOB, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan patient row: %w", err)
	}
	return &p, nil
}
