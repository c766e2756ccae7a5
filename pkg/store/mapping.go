package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// MappingStore is the repository for the PendingAnalyte review queue and
// its MatchReview decisions.
type MappingStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx.
func (s *MappingStore) WithTx(tx pgx.Tx) *MappingStore {
	return &MappingStore{db: tx}
}

// Enqueue inserts a pending review item, or increments its occurrence
// counter if the same normalized name is already queued. Used whenever
// C8's tiers all fail to resolve a raw analyte name with enough confidence.
func (s *MappingStore) Enqueue(ctx context.Context, rawName, normalized string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pending_analytes (id, raw_name, normalized)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized) DO UPDATE SET occurrence_n = pending_analytes.occurrence_n + 1, updated_at = now()
		WHERE pending_analytes.status = 'open'
	`, uuid.NewString(), rawName, normalized)
	if err != nil {
		return fmt.Errorf("enqueue pending analyte: %w", err)
	}
	return nil
}

// ListOpen returns pending review items ordered by occurrence count
// descending, so admins see the highest-impact unmapped names first.
func (s *MappingStore) ListOpen(ctx context.Context, limit int) ([]*models.PendingAnalyte, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, raw_name, normalized, occurrence_n, status, created_at, updated_at
		FROM pending_analytes WHERE status = 'open'
		ORDER BY occurrence_n DESC, created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list open pending analytes: %w", err)
	}
	defer rows.Close()

	var out []*models.PendingAnalyte
	for rows.Next() {
		var p models.PendingAnalyte
		if err := rows.Scan(&p.ID, &p.RawName, &p.Normalized, &p.OccurrenceN, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending analyte: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Get returns a pending analyte by id, erroring with ErrNotFound if it is
// gone or already resolved out from under a concurrent reviewer.
func (s *MappingStore) Get(ctx context.Context, id string) (*models.PendingAnalyte, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, raw_name, normalized, occurrence_n, status, created_at, updated_at
		FROM pending_analytes WHERE id = $1 AND status = 'open'
	`, id)
	var p models.PendingAnalyte
	if err := row.Scan(&p.ID, &p.RawName, &p.Normalized, &p.OccurrenceN, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan pending analyte: %w", err)
	}
	return &p, nil
}

// Resolve marks a pending analyte accepted or rejected and records the
// review decision. Must be called inside the same transaction as any
// resulting alias creation and lab-result backfill (see pkg/mapping).
func (s *MappingStore) Resolve(ctx context.Context, pendingID, reviewerID string, decision models.ReviewStatus, targetAnalyteID *string) error {
	tag, err := s.db.Exec(ctx, `UPDATE pending_analytes SET status = $2, updated_at = now() WHERE id = $1 AND status = 'open'`, pendingID, decision)
	if err != nil {
		return fmt.Errorf("resolve pending analyte: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending analyte %s already resolved", pendingID)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO match_reviews (id, pending_analyte_id, reviewer_id, decision, target_analyte_id)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), pendingID, reviewerID, decision, targetAnalyteID)
	if err != nil {
		return fmt.Errorf("record match review: %w", err)
	}
	return nil
}
