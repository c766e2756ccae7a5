package toolloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrace/labtrace/pkg/schema"
)

func noopSnapshot(ctx context.Context) (*schema.Manifest, error) {
	return testManifest(), nil
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	res := d.Execute(context.Background(), "sess", "user", ToolName("bogus"), nil, "")
	assert.True(t, res.IsError)
}

func TestDispatcher_ShowPlot_RequiresDataOrCache(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	args, _ := json.Marshal(ShowPlotArgs{PlotTitle: "trend"})
	res := d.Execute(context.Background(), "sess", "user", ToolShowPlot, args, "")
	require.True(t, res.IsError)
	assert.Nil(t, res.DisplayEvent)
}

func TestDispatcher_ShowPlot_UsesSuppliedData(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	args, _ := json.Marshal(ShowPlotArgs{PlotTitle: "trend", Data: json.RawMessage(`[{"x":1}]`)})
	res := d.Execute(context.Background(), "sess", "user", ToolShowPlot, args, "")
	require.False(t, res.IsError)
	require.NotNil(t, res.DisplayEvent)
	assert.Equal(t, "plot_result", res.DisplayEvent.Type)
	assert.Equal(t, "trend", res.DisplayEvent.Title)
}

func TestDispatcher_ShowTable_FallsBackToCachedResult(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	d.lastResults["sess"] = json.RawMessage(`[{"a":1}]`)

	args, _ := json.Marshal(ShowTableArgs{TableTitle: "results"})
	res := d.Execute(context.Background(), "sess", "user", ToolShowTable, args, "")
	require.False(t, res.IsError)
	require.NotNil(t, res.DisplayEvent)
	assert.Equal(t, "table_result", res.DisplayEvent.Type)
	assert.JSONEq(t, `[{"a":1}]`, string(res.DisplayEvent.Data))
}

func TestDispatcher_ShowTable_CacheIsPerSession(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	d.lastResults["other-session"] = json.RawMessage(`[{"a":1}]`)

	args, _ := json.Marshal(ShowTableArgs{TableTitle: "results"})
	res := d.Execute(context.Background(), "sess", "user", ToolShowTable, args, "")
	assert.True(t, res.IsError)
}

func TestDispatcher_InvalidArgumentsJSON(t *testing.T) {
	d := NewDispatcher(nil, noopSnapshot)
	res := d.Execute(context.Background(), "sess", "user", ToolShowPlot, json.RawMessage(`not json`), "")
	assert.True(t, res.IsError)
}
