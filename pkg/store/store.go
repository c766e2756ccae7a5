// Package store implements hand-written pgx repositories over the tables
// described in ent/schema. There is no generated ORM client here (ent's
// codegen is never run); every query in this package is plain SQL against
// a *pgxpool.Pool.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository method run either standalone or inside a caller-managed
// transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// Store bundles every repository against a shared pool.
type Store struct {
	Pool *pgxpool.Pool

	Patients   *PatientStore
	Reports    *ReportStore
	LabResults *LabResultStore
	Analytes   *AnalyteStore
	Mapping    *MappingStore
	Users      *UserStore
	Audit      *AuditStore
}

// New builds a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:       pool,
		Patients:   &PatientStore{db: pool},
		Reports:    &ReportStore{db: pool},
		LabResults: &LabResultStore{db: pool},
		Analytes:   &AnalyteStore{db: pool},
		Mapping:    &MappingStore{db: pool},
		Users:      &UserStore{db: pool},
		Audit:      &AuditStore{db: pool},
	}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Callers construct entity-scoped repositories
// bound to the tx (e.g. &PatientStore{db: tx}) when they need cross-table
// atomicity, such as the C7 ingestion persist stage or C8's two-phase
// backfill.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithUserScope runs fn inside a transaction with the Postgres session
// variable app.current_user_id set for the duration, enabling row-level
// security policies (see pkg/database/migrations) that restrict patient
// visibility to rows owned by that user.
func (s *Store) WithUserScope(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.current_user_id', $1, true)", userID); err != nil {
			return fmt.Errorf("set current user scope: %w", err)
		}
		return fn(tx)
	})
}

// ErrNotFound is returned by a lookup-by-id method when no row matches.
var ErrNotFound = fmt.Errorf("not found")
