package ingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// Reprocess re-runs extraction (rasterizing first when the provider needs
// page images), sanitize, lab-result replacement and trigger-mapping
// against a report's already-stored raw bytes, useful when a vision
// provider regresses or a parser bug is fixed. Admission and
// checksum/dedup do not re-run: the report already exists and its bytes
// are trusted. Existing
// lab results for the report are replaced, not appended.
func (p *Pipeline) Reprocess(ctx context.Context, jobID, reportID string) {
	err := p.reprocess(ctx, jobID, reportID)
	if err != nil {
		p.logger.Error("reprocess failed", "job_id", jobID, "report_id", reportID, "error", p.masker.Redact(err.Error()))
		_ = p.jobs.Fail(jobID, err)
		return
	}
	_ = p.jobs.Complete(jobID, reportID)
}

func (p *Pipeline) reprocess(ctx context.Context, jobID, reportID string) error {
	p.progress(jobID, 5, "loading stored report")
	report, err := p.store.Reports.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	raw, err := p.content.Get(report.StoragePath)
	if err != nil {
		return fmt.Errorf("load stored artifact: %w", err)
	}

	in := Input{Bytes: raw, MimeType: mimeFromChecksumlessBytes(raw), UserID: "", PatientName: ""}

	extracted, err := p.extract(ctx, jobID, in)
	if err != nil {
		return fmt.Errorf("vision analysis: %w", err)
	}

	p.progress(jobID, 82, "sanitizing extraction")
	results, collectedAt, err := sanitize(extracted)
	if err != nil {
		return fmt.Errorf("sanitize: %w", err)
	}

	p.progress(jobID, 88, "replacing lab results")
	if err := p.store.WithTx(ctx, func(tx pgx.Tx) error {
		labResults := p.store.LabResults.WithTx(tx)
		reports := p.store.Reports.WithTx(tx)

		if err := labResults.DeleteByReport(ctx, reportID); err != nil {
			return fmt.Errorf("clear previous results: %w", err)
		}

		rows := make([]*models.LabResult, 0, len(results))
		for _, r := range results {
			rows = append(rows, &models.LabResult{
				ReportID:  reportID,
				PatientID: report.PatientID,
				RawName:   r.RawName,
				Value:     r.Value,
				Unit:      r.Unit,
				RefLow:    r.RefLow,
				RefHigh:   r.RefHigh,
				Flag:      r.Flag,
			})
		}
		if len(rows) > 0 {
			if err := labResults.CreateBatch(ctx, rows); err != nil {
				return fmt.Errorf("insert lab results: %w", err)
			}
		}

		if err := reports.SetRawOutput(ctx, reportID, string(extracted)); err != nil {
			return fmt.Errorf("persist raw output: %w", err)
		}
		if collectedAt != nil {
			if err := reports.SetCollectedAt(ctx, reportID, collectedAt); err != nil {
				return fmt.Errorf("set collected_at: %w", err)
			}
		}
		return reports.UpdateStatus(ctx, reportID, models.ReportStatusMapped, "")
	}); err != nil {
		return err
	}

	p.progress(jobID, 95, "queuing analyte mapping")
	go p.triggerMapping()

	p.progress(jobID, 100, "done")
	return nil
}

// mimeFromChecksumlessBytes sniffs the stored artifact's mime type by
// magic bytes, since Reprocess does not have the original upload's
// declared Content-Type available.
func mimeFromChecksumlessBytes(b []byte) string {
	if len(b) >= 4 && string(b[:4]) == "%PDF" {
		return "application/pdf"
	}
	if len(b) >= 8 && b[0] == 0x89 && b[1] == 'P' && b[2] == 'N' && b[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}
