package insight

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrace/labtrace/pkg/models"
)

func TestResultSchema_DescribesAllFields(t *testing.T) {
	raw := resultSchema()
	require.True(t, json.Valid(raw))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	props, ok := decoded["properties"].(map[string]any)
	require.True(t, ok, "schema must have a properties object")
	for _, field := range []string{"finding", "action", "tracking", "follow_ups"} {
		assert.Contains(t, props, field)
	}
}

func TestBuildPrompt_IncludesReportsAndResults(t *testing.T) {
	collected := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	reports := []*models.Report{
		{SourceName: "bloodwork.pdf", CollectedAt: &collected},
	}
	refLow, refHigh := 70.0, 100.0
	results := []*models.LabResult{
		{RawName: "Glucose", Value: 95, Unit: "mg/dL", RefLow: &refLow, RefHigh: &refHigh, Flag: ""},
	}

	prompt := buildPrompt(reports, results)
	assert.Contains(t, prompt, "bloodwork.pdf")
	assert.Contains(t, prompt, "2026-01-15")
	assert.Contains(t, prompt, "Glucose")
	assert.Contains(t, prompt, "95")
}

func TestFormatRef_NilIsQuestionMark(t *testing.T) {
	assert.Equal(t, "?", formatRef(nil))
	v := 42.5
	assert.Equal(t, "42.5", formatRef(&v))
}
