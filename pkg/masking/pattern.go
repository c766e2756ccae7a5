package masking

import "regexp"

var uuidLike = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns is the fixed set of PHI-shaped patterns labtrace redacts.
// Unlike the MCP-server masking this was adapted from, there is no per-tenant
// custom pattern registry: every caller gets the same built-in sweep.
var builtinPatterns = []struct {
	name, pattern, replacement, description string
}{
	{
		name:        "ssn",
		pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		replacement: "[REDACTED-SSN]",
		description: "US Social Security Number",
	},
	{
		name:        "phone",
		pattern:     `\b\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`,
		replacement: "[REDACTED-PHONE]",
		description: "North American phone number",
	},
	{
		name:        "email",
		pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		replacement: "[REDACTED-EMAIL]",
		description: "Email address",
	},
	{
		name:        "dob",
		pattern:     `\b(0[1-9]|1[0-2])[/\-](0[1-9]|[12]\d|3[01])[/\-](19|20)\d{2}\b`,
		replacement: "[REDACTED-DOB]",
		description: "MM/DD/YYYY or MM-DD-YYYY date of birth",
	},
	{
		name:        "mrn",
		pattern:     `\bMRN[:#\s]*[A-Z0-9]{6,12}\b`,
		replacement: "[REDACTED-MRN]",
		description: "Medical record number labeled inline as MRN",
	},
}

func compiledBuiltinPatterns() ([]*CompiledPattern, error) {
	out := make([]*CompiledPattern, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, &CompiledPattern{
			Name:        p.name,
			Regex:       re,
			Replacement: p.replacement,
			Description: p.description,
		})
	}
	return out, nil
}
