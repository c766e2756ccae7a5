package apierr

import "fmt"

// ScopeError reports a patient-scope enforcement violation in an
// execute_sql tool call. Unlike ValidationError, a ScopeError is never
// propagated up as a Go error past pkg/toolloop: it's serialized into the
// tool result content so the LLM sees it as a failed tool call and can
// self-correct.
type ScopeError struct {
	Reason string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scope violation: %s", e.Reason)
}

// ValidationSQLError reports a SQL validator rejection (writes, DDL,
// multiple statements, missing LIMIT that couldn't be injected, etc.).
type ValidationSQLError struct {
	Reason string
}

func (e *ValidationSQLError) Error() string {
	return fmt.Sprintf("sql rejected: %s", e.Reason)
}
