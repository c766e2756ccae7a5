package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_DropsRowsWithoutValue(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"raw_name":"Glucose"},{"raw_name":"Sodium","value":140}]}`)
	results, _, err := sanitize(raw)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Sodium", results[0].RawName)
}

func TestSanitize_NormalizesWhitespace(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"raw_name":"  Total   Cholesterol  ","value":180,"unit":"  mg/dL "}]}`)
	results, _, err := sanitize(raw)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Total Cholesterol", results[0].RawName)
	assert.Equal(t, "mg/dL", results[0].Unit)
}

func TestSanitize_PrefersStatusEnumOverFlag(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"raw_name":"LDL","value":130,"status":"above","flag":"H"}]}`)
	results, _, err := sanitize(raw)
	require.NoError(t, err)
	assert.Equal(t, "above", results[0].Flag)
}

func TestSanitize_RejectsInvalidStatusFallsBackToFlagThenUnknown(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"raw_name":"LDL","value":130,"status":"bogus","flag":"H"},{"raw_name":"HDL","value":55,"status":"bogus"}]}`)
	results, _, err := sanitize(raw)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "H", results[0].Flag)
	assert.Equal(t, "unknown", results[1].Flag)
}

func TestSanitize_ISODate(t *testing.T) {
	raw := json.RawMessage(`{"collected_at":"2024-03-07","results":[]}`)
	_, collectedAt, err := sanitize(raw)
	require.NoError(t, err)
	require.NotNil(t, collectedAt)
	assert.Equal(t, 2024, collectedAt.Year())
	assert.Equal(t, 3, int(collectedAt.Month()))
	assert.Equal(t, 7, collectedAt.Day())
}

func TestSanitize_UnambiguousEuropeanDate(t *testing.T) {
	// day=14 > 12, so this is unambiguously 14 March 2024, not the 3rd of the 14th month.
	raw := json.RawMessage(`{"collected_at":"14/03/2024","results":[]}`)
	_, collectedAt, err := sanitize(raw)
	require.NoError(t, err)
	require.NotNil(t, collectedAt)
	assert.Equal(t, 14, collectedAt.Day())
	assert.Equal(t, 3, int(collectedAt.Month()))
}

func TestSanitize_AmbiguousDateRejected(t *testing.T) {
	raw := json.RawMessage(`{"collected_at":"03/04/2024","results":[]}`)
	_, collectedAt, err := sanitize(raw)
	require.NoError(t, err)
	assert.Nil(t, collectedAt)
}

func TestSanitize_TwoDigitYearPivot(t *testing.T) {
	raw := json.RawMessage(`{"collected_at":"2024-01-01","results":[]}`)
	_, collectedAt, err := sanitize(raw)
	require.NoError(t, err)
	require.NotNil(t, collectedAt)

	young, ok := parseFlexibleDate("15/01/49")
	require.True(t, ok)
	assert.Equal(t, 2049, young.Year())

	old, ok := parseFlexibleDate("15/01/78")
	require.True(t, ok)
	assert.Equal(t, 1978, old.Year())
}

func TestSanitize_EmptyRawNameDropped(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"raw_name":"   ","value":1}]}`)
	results, _, err := sanitize(raw)
	require.NoError(t, err)
	assert.Empty(t, results)
}
