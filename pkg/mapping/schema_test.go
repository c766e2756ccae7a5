package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestionSchema_IsValidJSON(t *testing.T) {
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(suggestionSchema(), &parsed))
	assert.Equal(t, "object", parsed["type"])
	assert.Contains(t, parsed, "properties")
}

func TestThresholds_AutoAcceptIsStricterThanQueueAndBackfillThresholds(t *testing.T) {
	th := Thresholds{AutoAccept: 0.90, QueueLower: 0.65, BackfillMinOccurrence: 0.80}
	assert.Greater(t, th.AutoAccept, th.QueueLower)
	assert.Greater(t, th.AutoAccept, th.BackfillMinOccurrence)
}
