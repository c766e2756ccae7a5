package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labtrace/labtrace/pkg/session"
)

func TestPruneHistory_UnderBudgetKeepsEverything(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}
	out := pruneHistory("system", msgs, 1000, 10)
	assert.Equal(t, msgs, out)
}

func TestPruneHistory_OverBudgetKeepsRecentWindow(t *testing.T) {
	var msgs []session.Message
	for i := 0; i < 50; i++ {
		msgs = append(msgs, session.Message{Role: session.RoleUser, Content: strings.Repeat("x", 100)})
	}
	out := pruneHistory("system", msgs, 10, 5)
	assert.Len(t, out, 5)
	assert.Equal(t, msgs[45:], out)
}

func TestPruneHistory_ExpandsWindowToKeepToolCallWithItsResponse(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: strings.Repeat("x", 500)},
		{Role: session.RoleAssistant, Content: "", ToolCalls: []session.ToolCall{{ID: "t1", Name: "execute_sql", Arguments: "{}"}}},
		{Role: session.RoleTool, Content: "result", ToolUseID: "t1"},
		{Role: session.RoleUser, Content: strings.Repeat("y", 500)},
	}
	out := pruneHistory("system", msgs, 10, 2)

	// keepRecent=2 would start mid-exchange at the tool response; the window
	// must expand backward to include the assistant message that made the call.
	assert.Equal(t, msgs[1:], out)
}

func TestPruneHistory_DropsTrailingOrphanToolCall(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: strings.Repeat("x", 500)},
		{Role: session.RoleUser, Content: strings.Repeat("z", 500)},
		{Role: session.RoleAssistant, Content: "", ToolCalls: []session.ToolCall{{ID: "t1", Name: "execute_sql", Arguments: "{}"}}},
	}
	out := pruneHistory("system", msgs, 10, 2)

	// keepRecent=2 lands on the trailing assistant tool-calls message with
	// no tool response after it (the turn was cut off mid-flight); since it
	// has no preceding tool message to expand past, it must be dropped
	// rather than sent to the provider with an unanswered tool_use block.
	assert.Equal(t, msgs[1:2], out)
}

func TestDropTrailingOrphanToolCall_NoOpWhenHistoryEndsOnText(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}
	out := dropTrailingOrphanToolCall(msgs)
	assert.Equal(t, msgs, out)
}

func TestDropTrailingOrphanToolCall_RemovesUnansweredCall(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{{ID: "t1", Name: "execute_sql"}}},
	}
	out := dropTrailingOrphanToolCall(msgs)
	assert.Equal(t, msgs[:1], out)
}
