package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/config"
	"github.com/labtrace/labtrace/pkg/jobs"
	"github.com/labtrace/labtrace/pkg/mapping"
	"github.com/labtrace/labtrace/pkg/masking"
	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/storage"
	"github.com/labtrace/labtrace/pkg/store"
	"github.com/labtrace/labtrace/pkg/vision"
)

// Pipeline drives the seven ingestion stages: admission, rasterization,
// OCR, sanitize, checksum/dedup, persist, and trigger-mapping.
type Pipeline struct {
	cfg     *config.Config
	store   *store.Store
	content storage.ContentStore
	vision  vision.Provider
	jobs    *jobs.Manager
	mapper  *mapping.Applier
	masker  *masking.Service
	logger  *slog.Logger
}

// New builds a Pipeline. logger may be nil, in which case slog.Default is used.
func New(cfg *config.Config, st *store.Store, content storage.ContentStore, visionProvider vision.Provider, jobManager *jobs.Manager, mapper *mapping.Applier, masker *masking.Service, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, store: st, content: content, vision: visionProvider, jobs: jobManager, mapper: mapper, masker: masker, logger: logger}
}

// Run executes the full pipeline for one upload, reporting progress and
// terminal state through jobID. It never returns a half-persisted report:
// nothing is written to the reports/lab_results tables until stage 6,
// which runs as a single transaction.
func (p *Pipeline) Run(ctx context.Context, jobID string, in Input) {
	reportID, err := p.run(ctx, jobID, in)
	if err != nil {
		p.logger.Error("ingestion failed", "job_id", jobID, "error", p.masker.Redact(err.Error()))
		_ = p.jobs.Fail(jobID, err)
		return
	}
	_ = p.jobs.Complete(jobID, reportID)
}

func (p *Pipeline) run(ctx context.Context, jobID string, in Input) (string, error) {
	p.progress(jobID, 5, "admission")
	if err := p.admit(in); err != nil {
		return "", err
	}

	p.progress(jobID, 15, "checksum")
	checksum, err := storage.Checksum(bytes.NewReader(in.Bytes))
	if err != nil {
		return "", fmt.Errorf("compute checksum: %w", err)
	}
	if existing, err := p.store.Reports.FindByChecksum(ctx, checksum); err == nil {
		p.progress(jobID, 100, "duplicate report, reusing existing result")
		return existing.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("checksum lookup: %w", err)
	}

	raw, err := p.extract(ctx, jobID, in)
	if err != nil {
		return "", fmt.Errorf("vision analysis: %w", err)
	}

	p.progress(jobID, 82, "sanitizing extraction")
	results, collectedAt, err := sanitize(raw)
	if err != nil {
		return "", fmt.Errorf("sanitize: %w", err)
	}

	p.progress(jobID, 88, "persisting report")
	reportID, err := p.persist(ctx, in, checksum, string(raw), collectedAt, results)
	if err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}

	p.progress(jobID, 95, "queuing analyte mapping")
	go p.triggerMapping()

	p.progress(jobID, 100, "done")
	return reportID, nil
}

// extract runs stage 2 (rasterize, only if needed) and stage 3 (OCR). The
// provider itself reports ErrUnsupportedInput when handed a mime it
// cannot read natively, which is how the pipeline discovers rasterization
// is required rather than carrying a second "can this provider read a
// PDF" contract.
func (p *Pipeline) extract(ctx context.Context, jobID string, in Input) ([]byte, error) {
	progress := func(percent int, message string) {
		p.progress(jobID, 45+percent*35/100, message)
	}

	if in.MimeType == "application/pdf" {
		p.progress(jobID, 40, "running OCR")
		raw, err := p.vision.Analyze(ctx, vision.Input{PDFBytes: in.Bytes}, extractionSystemPrompt, extractionUserPrompt, extractionSchema(), progress)
		if !errors.Is(err, vision.ErrUnsupportedInput) {
			return raw, err
		}

		p.progress(jobID, 30, "rasterizing pages")
		pages, err := rasterizePDF(in.Bytes)
		if err != nil {
			return nil, fmt.Errorf("rasterize: %w", err)
		}
		p.progress(jobID, 45, "running OCR on rasterized pages")
		return p.vision.Analyze(ctx, vision.Input{Images: pages}, extractionSystemPrompt, extractionUserPrompt, extractionSchema(), progress)
	}

	p.progress(jobID, 45, "running OCR")
	return p.vision.Analyze(ctx, vision.Input{Images: [][]byte{in.Bytes}}, extractionSystemPrompt, extractionUserPrompt, extractionSchema(), progress)
}

// persist runs stage 6: write the artifact to content-addressed storage,
// then upsert patient, insert report, insert lab results and persist raw
// output within one transaction. If the transaction fails it rolls back
// and no report row survives — there is no partially-persisted state to
// mark failed; the artifact file written beforehand stays in the store.
func (p *Pipeline) persist(ctx context.Context, in Input, checksum, rawOutput string, collectedAt *time.Time, results []sanitizedResult) (string, error) {
	hash, err := p.content.Put(in.Bytes)
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}

	var reportID string
	err = p.store.WithTx(ctx, func(tx pgx.Tx) error {
		patients := p.store.Patients.WithTx(tx)
		reports := p.store.Reports.WithTx(tx)
		labResults := p.store.LabResults.WithTx(tx)

		externalID := in.UserID + ":" + store.Normalize(in.PatientName)
		patient, err := patients.UpsertByExternalID(ctx, in.UserID, externalID, in.PatientName, nil)
		if err != nil {
			return fmt.Errorf("upsert patient: %w", err)
		}

		report, err := reports.Create(ctx, &models.Report{
			PatientID:   patient.ID,
			Status:      models.ReportStatusProcessing,
			Checksum:    checksum,
			StoragePath: hash,
			SourceName:  in.OriginalName,
			CollectedAt: collectedAt,
		})
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		reportID = report.ID

		rows := make([]*models.LabResult, 0, len(results))
		for _, r := range results {
			rows = append(rows, &models.LabResult{
				ReportID:  report.ID,
				PatientID: patient.ID,
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

		if err := reports.SetRawOutput(ctx, report.ID, rawOutput); err != nil {
			return fmt.Errorf("persist raw output: %w", err)
		}
		return reports.UpdateStatus(ctx, report.ID, models.ReportStatusMapped, "")
	})
	if err != nil {
		return "", err
	}
	return reportID, nil
}

func (p *Pipeline) progress(jobID string, percent int, message string) {
	p.jobs.SetProgress(jobID, percent, message)
}

func (p *Pipeline) triggerMapping() {
	ctx := context.Background()
	if err := p.mapper.ApplyAll(ctx, 500); err != nil {
		p.logger.Error("post-ingest mapping pass failed", "error", err)
	}
}
