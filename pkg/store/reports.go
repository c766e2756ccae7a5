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

// ReportStore is the repository for reports.
type ReportStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx.
func (s *ReportStore) WithTx(tx pgx.Tx) *ReportStore {
	return &ReportStore{db: tx}
}

// FindByChecksum looks up a report by the sha256 of its raw bytes, used by
// C7 stage 5 to short-circuit duplicate uploads.
func (s *ReportStore) FindByChecksum(ctx context.Context, checksum string) (*models.Report, error) {
	row := s.db.QueryRow(ctx, reportSelect+" WHERE checksum = $1", checksum)
	return scanReport(row)
}

// Create inserts a new report row with the status set on r.
func (s *ReportStore) Create(ctx context.Context, r *models.Report) (*models.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO reports (id, patient_id, status, checksum, storage_path, source_name, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		`+reportReturning, r.ID, r.PatientID, r.Status, r.Checksum, r.StoragePath, r.SourceName, r.CollectedAt)
	return scanReport(row)
}

// Get returns a report by id.
func (s *ReportStore) Get(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRow(ctx, reportSelect+" WHERE id = $1", id)
	return scanReport(row)
}

// UpdateStatus transitions a report's status, optionally recording a
// failure reason.
func (s *ReportStore) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, failReason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reports SET status = $2, fail_reason = $3, updated_at = now() WHERE id = $1
	`, id, status, failReason)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRawOutput persists the raw OCR/extraction text, used both on initial
// ingestion and by Reprocess.
func (s *ReportStore) SetRawOutput(ctx context.Context, id, rawOutput string) error {
	_, err := s.db.Exec(ctx, `UPDATE reports SET raw_output = $2, updated_at = now() WHERE id = $1`, id, rawOutput)
	if err != nil {
		return fmt.Errorf("set raw output: %w", err)
	}
	return nil
}

// SetCollectedAt updates the report's collection date, used by Reprocess
// when a fresh extraction recovers a date the original pass missed.
func (s *ReportStore) SetCollectedAt(ctx context.Context, id string, collectedAt *time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE reports SET collected_at = $2, updated_at = now() WHERE id = $1`, id, collectedAt)
	if err != nil {
		return fmt.Errorf("set collected_at: %w", err)
	}
	return nil
}

// ListByPatient returns a patient's reports, most recent first.
func (s *ReportStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]*models.Report, error) {
	rows, err := s.db.Query(ctx, reportSelect+" WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2", patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports by patient: %w", err)
	}
	defer rows.Close()

	var out []*models.Report
	for rows.Next() {
		r, err := scanReportRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const reportSelect = `
	SELECT id, patient_id, status, checksum, storage_path, source_name, collected_at, raw_output, fail_reason, created_at, updated_at
	FROM reports`

const reportReturning = `
	RETURNING id, patient_id, status, checksum, storage_path, source_name, collected_at, raw_output, fail_reason, created_at, updated_at`

func scanReport(row pgx.Row) (*models.Report, error) {
	var r models.Report
	var collectedAt *time.Time
	if err := row.Scan(&r.ID, &r.PatientID, &r.Status, &r.Checksum, &r.StoragePath, &r.SourceName, &collectedAt, &r.RawOutput, &r.FailReason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.CollectedAt = collectedAt
	return &r, nil
}

func scanReportRows(rows pgx.Rows) (*models.Report, error) {
	var r models.Report
	var collectedAt *time.Time
	if err := rows.Scan(&r.ID, &r.PatientID, &r.Status, &r.Checksum, &r.StoragePath, &r.SourceName, &collectedAt, &r.RawOutput, &r.FailReason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan report row: %w", err)
	}
	r.CollectedAt = collectedAt
	return &r, nil
}
