package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrace/labtrace/pkg/llm"
	"github.com/labtrace/labtrace/pkg/session"
)

func TestToLLMMessages_ThreadsToolCallsAndResults(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: "how's my glucose?"},
		{
			Role: session.RoleAssistant,
			ToolCalls: []session.ToolCall{
				{ID: "t1", Name: "execute_sql", Arguments: `{"sql":"select 1"}`},
			},
		},
		{Role: session.RoleTool, Content: "[{\"glucose\":95}]", ToolUseID: "t1"},
	}

	out := toLLMMessages(msgs)
	require.Len(t, out, 3)

	assert.Equal(t, llm.RoleUser, out[0].Role)

	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "t1", out[1].ToolCalls[0].ID)
	assert.Equal(t, "execute_sql", out[1].ToolCalls[0].Name)
	assert.JSONEq(t, `{"sql":"select 1"}`, string(out[1].ToolCalls[0].Input))

	require.Len(t, out[2].ToolResults, 1)
	assert.Equal(t, "t1", out[2].ToolResults[0].ToolCallID)
	assert.Equal(t, "[{\"glucose\":95}]", out[2].ToolResults[0].Content)
}

func TestToolDefinitionsForLLM_MirrorsToolloopDefinitions(t *testing.T) {
	defs := toolDefinitionsForLLM()
	require.NotEmpty(t, defs)

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		require.True(t, json.Valid(d.Schema), "schema for %s must be valid JSON", d.Name)
	}
	assert.Contains(t, names, "execute_sql")
	assert.Contains(t, names, "fuzzy_search")
	assert.Contains(t, names, "show_plot")
	assert.Contains(t, names, "show_table")
}
