package chat

import "github.com/labtrace/labtrace/pkg/session"

// charsPerTokenEstimate is a deliberately crude token estimator — good
// enough to decide when to prune, not to bill usage.
const charsPerTokenEstimate = 4

// estimateTokens approximates the token cost of the system prompt plus a
// message history.
func estimateTokens(system string, msgs []session.Message) int {
	total := len(system)
	for _, m := range msgs {
		total += len(m.Content)
		for _, tc := range m.ToolCalls {
			total += len(tc.Arguments)
		}
	}
	return total / charsPerTokenEstimate
}

// pruneHistory keeps the most recent messages within budget when the
// full history would exceed maxTokens. It never splits an assistant
// tool-calls message from the tool responses that follow it: if keeping
// the last N messages would start mid-way through a tool exchange, the
// window expands backward to the preceding assistant message, or (if
// that assistant message's tool calls would then have no room for their
// responses) that trailing assistant message is dropped entirely so the
// kept history never ends on an unanswered tool call.
func pruneHistory(system string, msgs []session.Message, maxTokens, keepRecent int) []session.Message {
	if estimateTokens(system, msgs) <= maxTokens || len(msgs) <= keepRecent {
		return msgs
	}

	start := len(msgs) - keepRecent
	for start > 0 && msgs[start].Role == session.RoleTool {
		start--
	}

	kept := msgs[start:]
	kept = dropTrailingOrphanToolCall(kept)
	return kept
}

// dropTrailingOrphanToolCall removes a final assistant message with tool
// calls if none of its corresponding tool-role responses survived
// pruning, which would otherwise violate the provider's requirement that
// every tool_use block be followed by a matching tool_result.
func dropTrailingOrphanToolCall(msgs []session.Message) []session.Message {
	if len(msgs) == 0 {
		return msgs
	}
	last := msgs[len(msgs)-1]
	if last.Role != session.RoleAssistant || len(last.ToolCalls) == 0 {
		return msgs
	}
	return msgs[:len(msgs)-1]
}
