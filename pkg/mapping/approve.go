package mapping

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/store"
)

// ApproveProposal accepts a pending analyte proposal into analyteID inside
// one transaction: it adds alias to analyteID, binds every still-unmapped
// lab result whose
// normalized raw name equals the proposal's normalized name, marks the
// pending row resolved and records the decision in one MatchReview row.
// Raw names that only resemble the proposal are not bound; no similarity
// threshold is applied.
func (a *Applier) ApproveProposal(ctx context.Context, pendingID, reviewerID, analyteID, alias string) error {
	return a.store.WithTx(ctx, func(tx pgx.Tx) error {
		mapping := a.store.Mapping.WithTx(tx)
		analytes := a.store.Analytes.WithTx(tx)
		labResults := a.store.LabResults.WithTx(tx)
		audit := a.store.Audit.WithTx(tx)

		pending, err := mapping.Get(ctx, pendingID)
		if err != nil {
			return fmt.Errorf("load pending analyte: %w", err)
		}

		if err := analytes.AddAlias(ctx, analyteID, alias, pending.Normalized); err != nil {
			return fmt.Errorf("add alias from approved proposal: %w", err)
		}

		if _, err := labResults.SetAnalyteByRawName(ctx, pending.Normalized, analyteID); err != nil {
			return fmt.Errorf("backfill lab results: %w", err)
		}

		if err := mapping.Resolve(ctx, pendingID, reviewerID, models.ReviewStatusAccepted, &analyteID); err != nil {
			return fmt.Errorf("resolve pending analyte: %w", err)
		}

		if err := audit.RecordAdminAction(ctx, reviewerID, "approve_pending_analyte", pendingID, alias); err != nil {
			return fmt.Errorf("record admin action: %w", err)
		}

		return nil
	})
}

// RejectProposal discards a pending analyte without creating an alias or
// binding any result, still recording the reviewer's decision.
func (a *Applier) RejectProposal(ctx context.Context, pendingID, reviewerID string) error {
	return a.store.WithTx(ctx, func(tx pgx.Tx) error {
		mapping := a.store.Mapping.WithTx(tx)
		audit := a.store.Audit.WithTx(tx)

		if err := mapping.Resolve(ctx, pendingID, reviewerID, models.ReviewStatusRejected, nil); err != nil {
			return err
		}
		return audit.RecordAdminAction(ctx, reviewerID, "reject_pending_analyte", pendingID, "")
	})
}

// ResolveMatchReview binds a MatchReview's result to the chosen analyte
// (tier-2 fuzzy queue resolution, distinct from a PendingAnalyte
// approval), optionally adding the raw name as a new alias so future
// occurrences resolve at tier 1.
func (a *Applier) ResolveMatchReview(ctx context.Context, resultID, analyteID string, addAlias bool, rawName string) error {
	return a.store.WithTx(ctx, func(tx pgx.Tx) error {
		labResults := a.store.LabResults.WithTx(tx)
		if err := labResults.SetAnalyte(ctx, resultID, analyteID); err != nil {
			return err
		}
		if addAlias {
			analytes := a.store.Analytes.WithTx(tx)
			if err := analytes.AddAlias(ctx, analyteID, rawName, store.Normalize(rawName)); err != nil {
				return err
			}
		}
		return nil
	})
}
