// Package toolloop implements C9: the tagged-union tool dispatch the chat
// stream orchestrator drives, plus the SQL validator and patient-scope
// enforcement that gate every execute_sql call.
package toolloop

import "encoding/json"

// ToolName enumerates the capabilities exposed to the LLM. Names are
// capabilities, not transport endpoints.
type ToolName string

const (
	ToolFuzzySearch ToolName = "fuzzy_search"
	ToolExecuteSQL  ToolName = "execute_sql"
	ToolShowPlot    ToolName = "show_plot"
	ToolShowTable   ToolName = "show_table"
)

// FuzzySearchArgs is the decoded argument shape for fuzzy_search.
type FuzzySearchArgs struct {
	Term  string `json:"term"`
	Scope string `json:"scope"` // "parameter" | "analyte" | "patient"
}

// ExecuteSQLArgs is the decoded argument shape for execute_sql.
type ExecuteSQLArgs struct {
	SQL string `json:"sql"`
}

// ShowPlotArgs is the decoded argument shape for show_plot.
type ShowPlotArgs struct {
	Data            json.RawMessage `json:"data,omitempty"`
	PlotTitle       string          `json:"plot_title"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	ReplacePrevious bool            `json:"replace_previous,omitempty"`
}

// ShowTableArgs is the decoded argument shape for show_table.
type ShowTableArgs struct {
	Data            json.RawMessage `json:"data,omitempty"`
	TableTitle      string          `json:"table_title"`
	ReplacePrevious bool            `json:"replace_previous,omitempty"`
}

// Result is what a tool call returns to the LLM (Content) and, for
// display tools, the session-scoped display event the chat orchestrator
// emits over SSE.
type Result struct {
	Content      string
	IsError      bool
	DisplayEvent *DisplayEvent
}

// DisplayEvent carries the typed plot/table payload the chat orchestrator
// forwards to pkg/sse.
type DisplayEvent struct {
	Type            string // "plot_result" | "table_result"
	Title           string
	Data            json.RawMessage
	ReplacePrevious bool
}

// Definitions returns the tool schemas offered to the LLM, in the
// provider-agnostic shape pkg/llm.Tool expects.
func Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolFuzzySearch,
			Description: "Suggest likely parameter names, analytes, or patient tokens matching a search term.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"term": {"type": "string"},
					"scope": {"type": "string", "enum": ["parameter", "analyte", "patient"]}
				},
				"required": ["term", "scope"]
			}`),
		},
		{
			Name:        ToolExecuteSQL,
			Description: "Run a read-only SQL query against the lab data schema.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {"sql": {"type": "string"}},
				"required": ["sql"]
			}`),
		},
		{
			Name:        ToolShowPlot,
			Description: "Display a plot of tabular data to the user.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"data": {"type": ["array", "null"]},
					"plot_title": {"type": "string"},
					"thumbnail": {"type": "string"},
					"replace_previous": {"type": "boolean"}
				},
				"required": ["plot_title"]
			}`),
		},
		{
			Name:        ToolShowTable,
			Description: "Display a table of tabular data to the user.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"data": {"type": ["array", "null"]},
					"table_title": {"type": "string"},
					"replace_previous": {"type": "boolean"}
				},
				"required": ["table_title"]
			}`),
		},
	}
}

// ToolDefinition pairs a tool name with its description and JSON schema.
type ToolDefinition struct {
	Name        ToolName
	Description string
	Schema      json.RawMessage
}
