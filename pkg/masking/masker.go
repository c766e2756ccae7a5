// Package masking redacts patient-identifying text before it leaves the
// application boundary: into application logs, audit trails, or an LLM
// prompt that isn't already scoped to a single consented patient. The
// pattern-table design below is adapted from a Kubernetes secret-output
// masking service, generalized from "mask secrets in MCP tool output" to
// "mask PHI in report text and chat transcripts."
package masking

// Masker gives a structural redaction step a chance to run before the
// general regex sweep, for identifiers regex alone handles poorly (e.g.
// an MRN embedded in a larger alphanumeric token).
type Masker interface {
	Name() string
	AppliesTo(data string) bool
	Mask(data string) string
}
