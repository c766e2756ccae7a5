package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/schema"
	"github.com/labtrace/labtrace/pkg/store"
)

// Dispatcher decodes and executes tool calls from the chat LLM, following
// the same decode-then-switch shape a tagged-union tool executor uses:
// one entry point, one type switch on tool name, each branch fully
// responsible for its own argument decoding and error shaping.
type Dispatcher struct {
	store      *store.Store
	snapshotFn func(ctx context.Context) (*schema.Manifest, error)

	mu          sync.Mutex
	lastResults map[string]json.RawMessage // sessionID -> last execute_sql result
}

// NewDispatcher builds a dispatcher. snapshotFn is typically
// (*schema.Snapshotter).Current, injected as a func so tests can stub it.
func NewDispatcher(st *store.Store, snapshotFn func(ctx context.Context) (*schema.Manifest, error)) *Dispatcher {
	return &Dispatcher{store: st, snapshotFn: snapshotFn, lastResults: make(map[string]json.RawMessage)}
}

// Execute runs one tool call for sessionID, scoped to userID's row-level
// visibility. selectedPatientID is empty when the owner has at most one
// patient (scope enforcement only applies once there is more than one
// patient to disambiguate between); callers pass it through regardless and
// Execute treats an empty value as "scope enforcement does not apply to
// this call".
func (d *Dispatcher) Execute(ctx context.Context, sessionID, userID string, name ToolName, argsJSON json.RawMessage, selectedPatientID string) Result {
	switch name {
	case ToolFuzzySearch:
		return d.fuzzySearch(ctx, argsJSON)
	case ToolExecuteSQL:
		return d.executeSQL(ctx, sessionID, userID, argsJSON, selectedPatientID)
	case ToolShowPlot:
		return d.showPlot(ctx, sessionID, argsJSON)
	case ToolShowTable:
		return d.showTable(ctx, sessionID, argsJSON)
	default:
		return Result{IsError: true, Content: fmt.Sprintf("unknown tool %q", name)}
	}
}

func (d *Dispatcher) fuzzySearch(ctx context.Context, argsJSON json.RawMessage) Result {
	var args FuzzySearchArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{IsError: true, Content: "invalid fuzzy_search arguments: " + err.Error()}
	}

	normalized := store.Normalize(args.Term)
	switch args.Scope {
	case "analyte", "parameter":
		candidates, err := d.store.Analytes.FindFuzzyAliases(ctx, normalized, 0.3, 10)
		if err != nil {
			return Result{IsError: true, Content: err.Error()}
		}
		out, _ := json.Marshal(candidates)
		return Result{Content: string(out)}
	case "patient":
		patients, err := d.store.Patients.List(ctx, 200)
		if err != nil {
			return Result{IsError: true, Content: err.Error()}
		}
		var matches []string
		for _, p := range patients {
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(args.Term)) {
				matches = append(matches, p.Name)
			}
		}
		out, _ := json.Marshal(matches)
		return Result{Content: string(out)}
	default:
		return Result{IsError: true, Content: fmt.Sprintf("unsupported fuzzy_search scope %q", args.Scope)}
	}
}

func (d *Dispatcher) executeSQL(ctx context.Context, sessionID, userID string, argsJSON json.RawMessage, selectedPatientID string) Result {
	var args ExecuteSQLArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{IsError: true, Content: "invalid execute_sql arguments: " + err.Error()}
	}

	snap, err := d.snapshotFn(ctx)
	if err != nil {
		return Result{IsError: true, Content: "schema snapshot unavailable: " + err.Error()}
	}

	validated, err := ValidateSQL(args.SQL, QueryKindTable, snap)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}
	}

	if selectedPatientID != "" {
		if err := EnforceScope(validated, selectedPatientID); err != nil {
			return Result{IsError: true, Content: err.Error()}
		}
	}

	rows, err := d.runReadOnly(ctx, userID, validated)
	if err != nil {
		return Result{IsError: true, Content: "query failed: " + err.Error()}
	}

	out, _ := json.Marshal(rows)
	d.mu.Lock()
	d.lastResults[sessionID] = out
	d.mu.Unlock()

	return Result{Content: string(out)}
}

func (d *Dispatcher) showPlot(ctx context.Context, sessionID string, argsJSON json.RawMessage) Result {
	var args ShowPlotArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{IsError: true, Content: "invalid show_plot arguments: " + err.Error()}
	}
	data := args.Data
	if len(data) == 0 {
		d.mu.Lock()
		data = d.lastResults[sessionID]
		d.mu.Unlock()
		if len(data) == 0 {
			return Result{IsError: true, Content: "no data supplied and no cached query result to plot"}
		}
	}
	return Result{
		Content: "plot displayed",
		DisplayEvent: &DisplayEvent{
			Type:            "plot_result",
			Title:           args.PlotTitle,
			Data:            data,
			ReplacePrevious: args.ReplacePrevious,
		},
	}
}

func (d *Dispatcher) showTable(ctx context.Context, sessionID string, argsJSON json.RawMessage) Result {
	var args ShowTableArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return Result{IsError: true, Content: "invalid show_table arguments: " + err.Error()}
	}
	data := args.Data
	if len(data) == 0 {
		d.mu.Lock()
		data = d.lastResults[sessionID]
		d.mu.Unlock()
		if len(data) == 0 {
			return Result{IsError: true, Content: "no data supplied and no cached query result to display"}
		}
	}
	return Result{
		Content: "table displayed",
		DisplayEvent: &DisplayEvent{
			Type:            "table_result",
			Title:           args.TableTitle,
			Data:            data,
			ReplacePrevious: args.ReplacePrevious,
		},
	}
}

// runReadOnly executes validated SQL inside a transaction scoped to
// userID, so row-level security policies apply, then returns rows as a
// slice of column-name-keyed maps.
func (d *Dispatcher) runReadOnly(ctx context.Context, userID, sql string) ([]map[string]any, error) {
	var out []map[string]any
	err := d.store.WithUserScope(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return err
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return err
			}
			row := make(map[string]any, len(fields))
			for i, f := range fields {
				row[string(f.Name)] = vals[i]
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	return out, err
}

