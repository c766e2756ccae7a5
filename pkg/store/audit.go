package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditStore records append-only AuditEvent and AdminAction rows.
type AuditStore struct {
	db Querier
}

// WithTx returns a copy of the store bound to tx, letting an admin
// mutation and its audit row commit or roll back together.
func (s *AuditStore) WithTx(tx pgx.Tx) *AuditStore {
	return &AuditStore{db: tx}
}

// Record inserts an audit event for a user-facing action.
func (s *AuditStore) Record(ctx context.Context, userID, action, detail string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (id, user_id, action, detail) VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), userID, action, detail)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// RecordAdminAction inserts an AdminAction row. Callers must run this in
// the same transaction as the privileged mutation it describes.
func (s *AuditStore) RecordAdminAction(ctx context.Context, adminID, action, targetID, detail string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO admin_actions (id, admin_id, action, target_id, detail) VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), adminID, action, targetID, detail)
	if err != nil {
		return fmt.Errorf("record admin action: %w", err)
	}
	return nil
}
