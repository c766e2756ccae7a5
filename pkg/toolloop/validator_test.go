package toolloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrace/labtrace/pkg/schema"
)

func testManifest() *schema.Manifest {
	return &schema.Manifest{
		ID: "test",
		Tables: []schema.Table{
			{Name: "lab_results", Columns: []schema.Column{{Name: "id", Type: "uuid"}, {Name: "patient_id", Type: "uuid"}}},
			{Name: "patients", Columns: []schema.Column{{Name: "id", Type: "uuid"}}},
		},
	}
}

func TestValidateSQL_RejectsNonSelect(t *testing.T) {
	_, err := ValidateSQL("UPDATE lab_results SET value = 1", QueryKindTable, testManifest())
	require.Error(t, err)
}

func TestValidateSQL_RejectsWriteKeywordInsideSelect(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM lab_results; DROP TABLE patients", QueryKindTable, testManifest())
	require.Error(t, err)
}

func TestValidateSQL_RejectsComments(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM lab_results -- sneaky", QueryKindTable, testManifest())
	require.Error(t, err)
}

func TestValidateSQL_RejectsMultipleStatements(t *testing.T) {
	_, err := ValidateSQL("SELECT 1; SELECT 2", QueryKindTable, testManifest())
	require.Error(t, err)
}

func TestValidateSQL_TolerateSingleTrailingSemicolon(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM lab_results;", QueryKindTable, testManifest())
	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 50")
}

func TestValidateSQL_TolerateSemicolonInsideStringLiteral(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM lab_results WHERE raw_name = 'a;b'", QueryKindTable, testManifest())
	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 50")
}

func TestValidateSQL_RejectsUnknownTable(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM secrets", QueryKindTable, testManifest())
	require.Error(t, err)
}

func TestValidateSQL_InjectsLimitWhenAbsent(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM lab_results", QueryKindTable, testManifest())
	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 50")
}

func TestValidateSQL_PlotKindUsesHigherCap(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM lab_results", QueryKindPlot, testManifest())
	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 10000")
}

func TestValidateSQL_DoesNotDuplicateExistingLimit(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM lab_results LIMIT 5", QueryKindTable, testManifest())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "LIMIT"))
}

func TestEnforceScope_RequiresPatientFilter(t *testing.T) {
	err := EnforceScope("SELECT * FROM lab_results", "11111111-1111-1111-1111-111111111111")
	require.Error(t, err)
}

func TestEnforceScope_AcceptsMatchingPatientID(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	err := EnforceScope("SELECT * FROM lab_results WHERE patient_id = '"+id+"'", id)
	require.NoError(t, err)
}

func TestEnforceScope_RejectsOtherPatientID(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	other := "22222222-2222-2222-2222-222222222222"
	err := EnforceScope("SELECT * FROM lab_results WHERE patient_id = '"+other+"'", id)
	require.Error(t, err)
}

func TestEnforceScope_RejectsNegation(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	err := EnforceScope("SELECT * FROM lab_results WHERE patient_id != '"+id+"'", id)
	require.Error(t, err)
}
