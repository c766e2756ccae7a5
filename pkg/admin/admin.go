// Package admin implements the C12 review workflow: listing the queue of
// unresolved analyte names and lab results, and recording an admin's
// accept/reject decisions. Every mutation runs against an RLS-bypass
// store instance (admins act across all patients, not one user's scope)
// and appends an AdminAction audit row in the same transaction as the
// mutation via pkg/mapping.Applier.
package admin

import (
	"context"
	"fmt"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/mapping"
	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/store"
)

// Service exposes the admin review queue and its resolution operations.
type Service struct {
	store   *store.Store
	applier *mapping.Applier
}

// New builds a Service. st must be bound to an RLS-bypass connection —
// review operations are not scoped to any one patient's owning user.
func New(st *store.Store, applier *mapping.Applier) *Service {
	return &Service{store: st, applier: applier}
}

// ListPendingAnalytes returns queued analyte-name reviews, highest
// occurrence count first.
func (s *Service) ListPendingAnalytes(ctx context.Context, limit int) ([]*models.PendingAnalyte, error) {
	return s.store.Mapping.ListOpen(ctx, limit)
}

// ListUnmappedResults returns lab results still waiting on an analyte,
// for the tier-2 manual-resolution queue.
func (s *Service) ListUnmappedResults(ctx context.Context, limit int) ([]*models.LabResult, error) {
	return s.store.LabResults.Unmapped(ctx, limit)
}

// ApproveRequest captures an admin's decision to accept a pending analyte
// name into a canonical Analyte — either an existing one (ExistingAnalyteID
// set) or a brand new one (NewAnalyteName set). Exactly one of the two
// must be set.
type ApproveRequest struct {
	PendingID          string
	ReviewerID         string
	ExistingAnalyteID  string
	NewAnalyteName     string
	NewAnalyteCategory string
}

// Approve resolves a pending analyte review, creating the target Analyte
// first if the admin chose to mint a new one rather than reuse an
// existing one.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) error {
	if req.ExistingAnalyteID == "" && req.NewAnalyteName == "" {
		return apierr.NewValidationError("analyte", "either existing_analyte_id or new_analyte_name is required")
	}

	pending, err := s.store.Mapping.Get(ctx, req.PendingID)
	if err != nil {
		return fmt.Errorf("load pending analyte: %w", err)
	}

	analyteID := req.ExistingAnalyteID
	if analyteID == "" {
		analyte, err := s.store.Analytes.Create(ctx, req.NewAnalyteName, req.NewAnalyteCategory)
		if err != nil {
			return fmt.Errorf("create analyte: %w", err)
		}
		analyteID = analyte.ID
	}

	return s.applier.ApproveProposal(ctx, req.PendingID, req.ReviewerID, analyteID, pending.RawName)
}

// Reject discards a pending analyte review without creating any alias.
func (s *Service) Reject(ctx context.Context, pendingID, reviewerID string) error {
	return s.applier.RejectProposal(ctx, pendingID, reviewerID)
}

// ResolveUnmappedResultRequest captures an admin's manual resolution of a
// single unmapped lab result, outside the pending-analyte queue (e.g. a
// one-off typo that will never recur).
type ResolveUnmappedResultRequest struct {
	ResultID  string
	AnalyteID string
	AddAlias  bool
	RawName   string
}

// ResolveUnmappedResult attaches a resolved analyte to a single lab
// result, optionally teaching the alias table the raw name so future
// occurrences resolve automatically at tier 1.
func (s *Service) ResolveUnmappedResult(ctx context.Context, req ResolveUnmappedResultRequest) error {
	return s.applier.ResolveMatchReview(ctx, req.ResultID, req.AnalyteID, req.AddAlias, req.RawName)
}
