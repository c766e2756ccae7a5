// Package insight implements C11: a single structured-output LLM call
// that turns a patient's recent lab history into a short onboarding
// narrative — one finding, one recommended action, what to keep
// tracking, and optional follow-up questions the user can ask the chat
// assistant next.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/labtrace/labtrace/pkg/llm"
	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/store"
)

// maxReports bounds how much history is folded into the prompt — recent
// reports are the ones worth narrating, and an unbounded patient history
// would blow past the model's context budget for no benefit.
const maxReports = 20

// Result is the structured shape the model is constrained to produce.
// Fields are in the same language as the source lab data, not
// necessarily English.
type Result struct {
	Finding   string   `json:"finding" jsonschema_description:"One or two sentences summarizing the most noteworthy pattern across the patient's recent results."`
	Action    string   `json:"action" jsonschema_description:"A concrete, non-prescriptive suggestion for what the patient might discuss with their clinician."`
	Tracking  string   `json:"tracking" jsonschema_description:"What to keep an eye on over time, e.g. a trending parameter."`
	FollowUps []string `json:"follow_ups" jsonschema_description:"Example questions the user could ask the chat assistant next."`
}

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
)

func resultSchema() json.RawMessage {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{DoNotReference: true}
		s := r.Reflect(&Result{})
		b, err := json.Marshal(s)
		if err != nil {
			panic(fmt.Sprintf("insight: marshal reflected schema: %v", err))
		}
		schemaJSON = b
	})
	return schemaJSON
}

// Generator produces onboarding insights from a patient's stored lab
// history.
type Generator struct {
	store *store.Store
	llm   llm.StructuredClient
	model string
}

// New builds a Generator. model selects the structured-output model
// (config.InsightModel).
func New(st *store.Store, client llm.StructuredClient, model string) *Generator {
	return &Generator{store: st, llm: client, model: model}
}

// Generate builds an onboarding insight for patientID from its most
// recent reports, capped at maxReports. Returns ErrNoData if the patient
// has no reports or no lab results yet; results count whether or not they
// are mapped to an analyte.
func (g *Generator) Generate(ctx context.Context, patientID string) (*Result, error) {
	reports, err := g.store.Reports.ListByPatient(ctx, patientID, maxReports)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, ErrNoData
	}

	results, err := g.store.LabResults.ForPatient(ctx, patientID, maxReports*50)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoData
	}

	prompt := buildPrompt(reports, results)

	raw, err := g.llm.Structured(llm.StructuredRequest{
		Model:     g.model,
		System:    systemPrompt,
		Prompt:    prompt,
		Schema:    resultSchema(),
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("structured insight call: %w", err)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode insight response: %w", err)
	}
	return &out, nil
}

// ErrNoData is returned when a patient has no persisted lab history to
// summarize yet.
var ErrNoData = fmt.Errorf("no lab history available for insight generation")

const systemPrompt = `You are a lab-results assistant producing a short onboarding summary for a patient who just had a report processed. Respond in the same language the lab data itself is written in. Be concrete and specific to the data given; never give a diagnosis or prescribe treatment — only suggest what to discuss with a clinician. If nothing stands out, say so plainly rather than inventing a concern.`

func buildPrompt(reports []*models.Report, results []*models.LabResult) string {
	var b strings.Builder
	b.WriteString("Recent reports:\n")
	for _, r := range reports {
		collected := "unknown date"
		if r.CollectedAt != nil {
			collected = r.CollectedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- %s (collected %s)\n", r.SourceName, collected)
	}

	b.WriteString("\nLab results:\n")
	for _, r := range results {
		flag := r.Flag
		if flag == "" {
			flag = "-"
		}
		fmt.Fprintf(&b, "- %s: %g %s (ref %s-%s, flag %s)\n",
			r.RawName, r.Value, r.Unit, formatRef(r.RefLow), formatRef(r.RefHigh), flag)
	}
	return b.String()
}

func formatRef(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%g", *v)
}
