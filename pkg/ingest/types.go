// Package ingest implements C7: the seven-stage pipeline that turns an
// uploaded lab report document into persisted, analyte-pending lab result
// rows — admission, rasterization, OCR, sanitize, checksum/dedup,
// persist, and trigger-mapping.
package ingest

import "encoding/json"

// Input is the raw material handed to the pipeline by the upload handler.
type Input struct {
	Bytes        []byte
	MimeType     string
	OriginalName string
	UserID       string
	PatientName  string // as declared by the uploader; upserted against PatientStore
}

// extractedReport is the sanitized shape the OCR/extraction stage must
// conform to before persistence. Field names match the vision provider's
// JSON schema.
type extractedReport struct {
	CollectedAt *string           `json:"collected_at"`
	Results     []extractedResult `json:"results"`
}

type extractedResult struct {
	RawName string   `json:"raw_name"`
	Value   *float64 `json:"value"`
	Unit    *string  `json:"unit"`
	RefLow  *float64 `json:"ref_low"`
	RefHigh *float64 `json:"ref_high"`
	Flag    *string  `json:"flag"`
	Status  *string  `json:"status"` // one of the validStatus values in sanitize.go
}

// extractionSchema is the structured-output schema handed to the vision
// provider. Every property listed here must appear in the returned JSON,
// using null rather than omission for unknown values — the sanitize stage
// depends on that to avoid silently dropping partially-read rows.
func extractionSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"collected_at": {"type": ["string", "null"]},
			"results": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"raw_name": {"type": "string"},
						"value": {"type": ["number", "null"]},
						"unit": {"type": ["string", "null"]},
						"ref_low": {"type": ["number", "null"]},
						"ref_high": {"type": ["number", "null"]},
						"flag": {"type": ["string", "null"]},
						"status": {"type": ["string", "null"], "enum": ["above", "below", "within", "flagged_by_lab", "unknown", null]}
					},
					"required": ["raw_name", "value", "unit", "ref_low", "ref_high", "flag", "status"]
				}
			}
		},
		"required": ["collected_at", "results"]
	}`)
}

const extractionSystemPrompt = `You transcribe laboratory test reports into structured data. Extract every analyte row exactly as printed, including its raw parameter name, numeric value, unit, reference range, and any flag. Never infer or guess a value that is not legible; use null.`

const extractionUserPrompt = `Transcribe every lab result row in this report into the provided schema.`
