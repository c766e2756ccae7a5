package toolloop

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/schema"
)

// QueryKind selects the LIMIT cap ValidateSQL applies: a plot backing
// query can return many more rows than a table the user will actually
// read. The execute_sql dispatch validates every query as QueryKindTable;
// no tool call selects QueryKindPlot.
type QueryKind int

const (
	QueryKindTable QueryKind = iota
	QueryKindPlot
)

const (
	tableLimitCap = 50
	plotLimitCap  = 10000
)

var (
	writeKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|grant|revoke|create|merge|call|execute|copy)\b`)
	leadingForm   = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	limitClause   = regexp.MustCompile(`(?i)\blimit\s+\d+\b`)
	commentMarker = regexp.MustCompile(`(--|/\*)`)
	patientFilter = regexp.MustCompile(`(?i)(["\w]+\.)?"?patient_id"?\s*(=|in\s*\()\s*'([0-9a-fA-F-]{36})'`)
	negatedFilter = regexp.MustCompile(`(?i)(["\w]+\.)?"?patient_id"?\s*(!=|<>|is\s+not|not\s+in|not\s*=)`)
	uuidLiteral   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// ValidateSQL enforces a read-only outermost form, single statement, no
// comments, identifiers resolved against the schema snapshot, and a
// bounded LIMIT (injected if absent). Returns the (possibly rewritten)
// query.
func ValidateSQL(sql string, kind QueryKind, snap *schema.Manifest) (string, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", &apierr.ValidationSQLError{Reason: "empty query"}
	}

	if !leadingForm.MatchString(trimmed) {
		return "", &apierr.ValidationSQLError{Reason: "query must start with SELECT or WITH"}
	}
	if writeKeywords.MatchString(trimmed) {
		return "", &apierr.ValidationSQLError{Reason: "writes and DDL are not permitted"}
	}
	if commentMarker.MatchString(trimmed) {
		return "", &apierr.ValidationSQLError{Reason: "SQL comments are not permitted"}
	}
	if err := checkSingleStatement(trimmed); err != nil {
		return "", err
	}
	if err := checkIdentifiers(trimmed, snap); err != nil {
		return "", err
	}

	return injectLimit(trimmed, kind), nil
}

// checkSingleStatement rejects a bare `;` outside string literals, which
// would otherwise let a second statement ride along after the first. A
// single trailing semicolon (with only whitespace after it) is tolerated.
func checkSingleStatement(sql string) error {
	body := strings.TrimRight(sql, " \t\n")
	body = strings.TrimSuffix(body, ";")

	inString := false
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				return &apierr.ValidationSQLError{Reason: "multiple statements are not permitted"}
			}
		}
	}
	return nil
}

// checkIdentifiers rejects table references outside the schema snapshot's
// allow-list. This is a conservative substring scan, not a full parser —
// see DESIGN.md for why a hand-rolled check was chosen over pulling in a
// SQL parser the pack doesn't otherwise use.
func checkIdentifiers(sql string, snap *schema.Manifest) error {
	if snap == nil {
		return nil
	}
	allowed := map[string]bool{}
	for _, t := range snap.Tables {
		allowed[strings.ToLower(t.Name)] = true
	}

	fromJoin := regexp.MustCompile(`(?i)\b(from|join)\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?`)
	for _, m := range fromJoin.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[2])
		if !allowed[name] {
			return &apierr.ValidationSQLError{Reason: fmt.Sprintf("table %q is not in the queryable schema", name)}
		}
	}
	return nil
}

func injectLimit(sql string, kind QueryKind) string {
	limitCap := tableLimitCap
	if kind == QueryKindPlot {
		limitCap = plotLimitCap
	}
	if !limitClause.MatchString(sql) {
		return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimRight(sql, ";"), " "), limitCap)
	}
	return sql
}

// EnforceScope applies patient-scope rules: when the session is scoped to
// a single patient, every execute_sql call must filter by that exact
// patient id, with no negation and no other UUIDs.
func EnforceScope(sql, selectedPatientID string) error {
	if negatedFilter.MatchString(sql) {
		return &apierr.ScopeError{Reason: "negated filters on patient_id are not permitted"}
	}
	if commentMarker.MatchString(sql) {
		return &apierr.ScopeError{Reason: "SQL comments are not permitted near the patient filter"}
	}

	matches := patientFilter.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return &apierr.ScopeError{Reason: "query must filter by patient_id"}
	}
	for _, m := range matches {
		if !strings.EqualFold(m[3], selectedPatientID) {
			return &apierr.ScopeError{Reason: "query references a patient id other than the selected patient"}
		}
	}

	// The patient_id filter check above only inspects the first value of
	// an IN-list and ignores UUIDs appearing in unrelated predicates
	// (an OR'd report_id, say). Scan every UUID literal in the statement
	// and reject any that isn't the selected patient.
	for _, u := range uuidLiteral.FindAllString(sql, -1) {
		if !strings.EqualFold(u, selectedPatientID) {
			return &apierr.ScopeError{Reason: "query references a patient id other than the selected patient"}
		}
	}
	return nil
}
