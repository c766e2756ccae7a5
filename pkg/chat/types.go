// Package chat implements the per-session chat turn orchestrator: the
// state machine that drives one user message through schema-grounded
// system prompt assembly, streaming LLM calls, the C9 tool loop, and
// SSE event emission, with token-budget-aware history pruning before
// every model call.
package chat

import (
	"errors"
)

// ErrSessionBusy is returned by PostMessage when a turn is already in
// flight for the session.
var ErrSessionBusy = errors.New("session is processing a previous message")

// ErrPatientNotFound is returned when the caller selects (or CreateSession
// is given) a patient id that doesn't exist or isn't visible to the
// requesting user under row-level security.
var ErrPatientNotFound = errors.New("patient not found or not visible to this user")

// ErrForbidden is returned by PostMessage when the caller does not own
// the session.
var ErrForbidden = errors.New("session does not belong to this user")

// OnboardingContext is attached to a session at creation time (after a
// fresh ingestion run produces an insight) and folded into the system
// prompt exactly once, on the session's first turn, then discarded so a
// retried first turn never duplicates it.
type OnboardingContext struct {
	Insight        string // narrative finding/action/tracking summary from pkg/insight
	ParameterTable string // the insight's follow-up suggestions, one per line; no table of lab values is built
}

const systemPromptPreamble = `You are a lab-results assistant. You can answer questions about a
patient's lab history using the tools available to you: fuzzy_search to
resolve ambiguous parameter or patient names, execute_sql to run
read-only queries against the schema described below, and show_plot /
show_table to present results visually. Only use execute_sql for
SELECT/WITH queries; never attempt to modify data. Prefer fuzzy_search
before guessing at a parameter or analyte name you are not certain of.`
