package store

import "strings"

// Normalize lower-cases and collapses internal whitespace, matching the
// SQL-side normalization used by SetAnalyteByRawName so Go-side and
// database-side comparisons never drift apart.
func Normalize(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	return strings.Join(fields, " ")
}
