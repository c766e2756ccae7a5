// Package mapping implements C8: the three-tier analyte matching pipeline
// and the two-phase approval backfill.
package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/labtrace/labtrace/pkg/llm"
	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/store"
)

// Thresholds configures the three-tier decision boundaries. Defaults are
// AutoAccept=0.90, QueueLower=0.65.
type Thresholds struct {
	AutoAccept            float64
	QueueLower            float64
	BackfillMinOccurrence float64
}

// Applier runs the mapping pipeline against newly persisted lab results.
type Applier struct {
	store      *store.Store
	llm        llm.StructuredClient
	thresholds Thresholds
	model      string
}

// NewApplier builds a mapping applier. llmClient may be nil, in which case
// tier 3 (LLM proposal) is skipped and unmatched results go straight to
// the pending-review queue without an LLM-suggested name/code.
func NewApplier(st *store.Store, llmClient llm.StructuredClient, model string, thresholds Thresholds) *Applier {
	return &Applier{store: st, llm: llmClient, model: model, thresholds: thresholds}
}

// ApplyAll runs the pipeline over every currently unmapped lab result.
// Intended to be invoked asynchronously by C7 stage 7 after each ingest,
// and safe to call repeatedly (already-mapped results are excluded by
// the Unmapped query).
func (a *Applier) ApplyAll(ctx context.Context, limit int) error {
	results, err := a.store.LabResults.Unmapped(ctx, limit)
	if err != nil {
		return fmt.Errorf("load unmapped lab results: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	var llmBatch []*models.LabResult
	for _, r := range results {
		normalized := store.Normalize(r.RawName)

		if analyte, err := a.store.Analytes.FindByExactAlias(ctx, normalized); err == nil {
			if bindErr := a.store.LabResults.SetAnalyte(ctx, r.ID, analyte.ID); bindErr != nil {
				return bindErr
			}
			continue
		} else if err != store.ErrNotFound {
			return fmt.Errorf("exact alias lookup: %w", err)
		}

		candidates, err := a.store.Analytes.FindFuzzyAliases(ctx, normalized, a.thresholds.QueueLower, 5)
		if err != nil {
			return fmt.Errorf("fuzzy alias lookup: %w", err)
		}
		if len(candidates) > 0 && candidates[0].Similarity >= a.thresholds.AutoAccept {
			if bindErr := a.store.LabResults.SetAnalyte(ctx, r.ID, candidates[0].AnalyteID); bindErr != nil {
				return bindErr
			}
			continue
		}
		if len(candidates) > 0 {
			// Below auto-accept but plausible: queue for human review rather
			// than binding automatically or falling through to the LLM tier.
			if err := a.queueReview(ctx, r, candidates); err != nil {
				return err
			}
			continue
		}

		llmBatch = append(llmBatch, r)
	}

	if len(llmBatch) > 0 && a.llm != nil {
		if err := a.applyLLMTier(ctx, llmBatch); err != nil {
			slog.Error("llm mapping tier failed, falling back to pending queue", "error", err)
			for _, r := range llmBatch {
				if err := a.store.Mapping.Enqueue(ctx, r.RawName, store.Normalize(r.RawName)); err != nil {
					return err
				}
			}
		}
	} else {
		for _, r := range llmBatch {
			if err := a.store.Mapping.Enqueue(ctx, r.RawName, store.Normalize(r.RawName)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *Applier) queueReview(ctx context.Context, r *models.LabResult, candidates []store.FuzzyCandidate) error {
	return a.store.Mapping.Enqueue(ctx, r.RawName, store.Normalize(r.RawName))
}

// llmSuggestion is the schema-constrained shape the LLM tier returns for
// one batched raw parameter name.
type llmSuggestion struct {
	RawName          string  `json:"raw_name" jsonschema:"required"`
	MatchedAnalyteID *string `json:"matched_analyte_id,omitempty"`
	Confidence       float64 `json:"confidence" jsonschema:"required"`
	ProposedCode     *string `json:"proposed_code,omitempty"`
	ProposedName     *string `json:"proposed_name,omitempty"`
	LanguageTag      *string `json:"language_tag,omitempty"`
}

type llmBatchResponse struct {
	Suggestions []llmSuggestion `json:"suggestions" jsonschema:"required"`
}

func (a *Applier) applyLLMTier(ctx context.Context, batch []*models.LabResult) error {
	schema := suggestionSchema()

	names := make([]string, 0, len(batch))
	for _, r := range batch {
		names = append(names, r.RawName)
	}
	prompt := fmt.Sprintf(
		"Identify the clinical analyte for each of these raw lab parameter names: %v. "+
			"For each, either match an existing analyte by id with a confidence score, "+
			"or propose a new analyte code/name if none plausibly matches.",
		names,
	)

	raw, err := a.llm.Structured(llm.StructuredRequest{
		Model:     a.model,
		System:    "You map raw laboratory parameter names to canonical analyte identifiers.",
		Prompt:    prompt,
		Schema:    schema,
		MaxTokens: 2048,
	})
	if err != nil {
		return fmt.Errorf("llm mapping call: %w", err)
	}

	var parsed llmBatchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse llm mapping response: %w", err)
	}

	byName := map[string]*models.LabResult{}
	for _, r := range batch {
		byName[r.RawName] = r
	}

	for _, s := range parsed.Suggestions {
		r, ok := byName[s.RawName]
		if !ok {
			continue
		}
		switch {
		case s.MatchedAnalyteID != nil && s.Confidence >= a.thresholds.AutoAccept:
			if err := a.store.LabResults.SetAnalyte(ctx, r.ID, *s.MatchedAnalyteID); err != nil {
				return err
			}
		case s.MatchedAnalyteID != nil && s.Confidence >= a.thresholds.QueueLower:
			if err := a.store.Mapping.Enqueue(ctx, r.RawName, store.Normalize(r.RawName)); err != nil {
				return err
			}
		default:
			if err := a.store.Mapping.Enqueue(ctx, r.RawName, store.Normalize(r.RawName)); err != nil {
				return err
			}
		}
	}
	return nil
}

func suggestionSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"suggestions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"raw_name": {"type": "string"},
						"matched_analyte_id": {"type": ["string", "null"]},
						"confidence": {"type": "number"},
						"proposed_code": {"type": ["string", "null"]},
						"proposed_name": {"type": ["string", "null"]},
						"language_tag": {"type": ["string", "null"]}
					},
					"required": ["raw_name", "confidence"]
				}
			}
		},
		"required": ["suggestions"]
	}`)
}
