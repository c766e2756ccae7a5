package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// LabResultStore is the repository for lab results.
type LabResultStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx.
func (s *LabResultStore) WithTx(tx pgx.Tx) *LabResultStore {
	return &LabResultStore{db: tx}
}

// CreateBatch inserts every extracted result for a report in one round
// trip. Used by C7 stage 6; always called inside the same transaction as
// the owning Report insert.
func (s *LabResultStore) CreateBatch(ctx context.Context, results []*models.LabResult) error {
	batch := &pgx.Batch{}
	for _, r := range results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO lab_results (id, report_id, patient_id, analyte_id, raw_name, value, unit, ref_low, ref_high, flag)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, r.ID, r.ReportID, r.PatientID, r.AnalyteID, r.RawName, r.Value, r.Unit, r.RefLow, r.RefHigh, r.Flag)
	}

	pool, ok := s.db.(interface {
		SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		return fmt.Errorf("lab result batch insert requires a batch-capable connection")
	}
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert lab result: %w", err)
		}
	}
	return nil
}

// Unmapped returns lab results that have not yet been resolved to an
// Analyte, grouped implicitly by raw_name via the caller's aggregation.
// Used by C8's mapping applier to drive the three-tier matching pass.
func (s *LabResultStore) Unmapped(ctx context.Context, limit int) ([]*models.LabResult, error) {
	rows, err := s.db.Query(ctx, labResultSelect+" WHERE analyte_id IS NULL ORDER BY created_at LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list unmapped lab results: %w", err)
	}
	defer rows.Close()
	return scanLabResultRowsAll(rows)
}

// SetAnalyte attaches a resolved analyte to a lab result.
func (s *LabResultStore) SetAnalyte(ctx context.Context, id, analyteID string) error {
	_, err := s.db.Exec(ctx, `UPDATE lab_results SET analyte_id = $2 WHERE id = $1`, id, analyteID)
	if err != nil {
		return fmt.Errorf("set lab result analyte: %w", err)
	}
	return nil
}

// SetAnalyteByRawName backfills every lab result whose raw_name matches
// normalized (case-insensitive, see normalize.go) to the given analyte.
// Used by C8's two-phase approval backfill after an admin accepts a
// PendingAnalyte into an existing or new Analyte.
func (s *LabResultStore) SetAnalyteByRawName(ctx context.Context, normalized, analyteID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE lab_results SET analyte_id = $2
		WHERE analyte_id IS NULL AND lower(regexp_replace(raw_name, '\s+', ' ', 'g')) = $1
	`, normalized, analyteID)
	if err != nil {
		return 0, fmt.Errorf("backfill lab results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByReport removes every lab result attached to a report, used by
// Reprocess before re-inserting a fresh extraction for the same report.
func (s *LabResultStore) DeleteByReport(ctx context.Context, reportID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM lab_results WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("delete lab results for report: %w", err)
	}
	return nil
}

// ForPatient returns a patient's results, mapped or not, joined conceptually
// to analytes by the caller (the chat tool loop queries this via
// execute_sql directly against the read-only schema; this method exists
// for services that need typed access, e.g. the onboarding insight).
func (s *LabResultStore) ForPatient(ctx context.Context, patientID string, limit int) ([]*models.LabResult, error) {
	rows, err := s.db.Query(ctx, labResultSelect+" WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2", patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list lab results for patient: %w", err)
	}
	defer rows.Close()
	return scanLabResultRowsAll(rows)
}

const labResultSelect = `
	SELECT id, report_id, patient_id, analyte_id, raw_name, value, unit, ref_low, ref_high, flag, created_at
	FROM lab_results`

func scanLabResultRowsAll(rows pgx.Rows) ([]*models.LabResult, error) {
	var out []*models.LabResult
	for rows.Next() {
		var r models.LabResult
		if err := rows.Scan(&r.ID, &r.ReportID, &r.PatientID, &r.AnalyteID, &r.RawName, &r.Value, &r.Unit, &r.RefLow, &r.RefHigh, &r.Flag, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lab result row: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
