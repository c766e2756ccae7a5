package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CompleteThenFailIsIgnored(t *testing.T) {
	m := NewManager(time.Hour, nil)
	j := m.Create("user-1")

	require.NoError(t, m.Complete(j.ID, "report-1"))
	require.NoError(t, m.Fail(j.ID, errors.New("too late")))

	got, ok := m.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "report-1", got.ReportID)
	assert.Empty(t, got.Error)
}

func TestManager_SetProgressIgnoredAfterTerminal(t *testing.T) {
	m := NewManager(time.Hour, nil)
	j := m.Create("user-1")
	require.NoError(t, m.Fail(j.ID, errors.New("boom")))

	m.SetProgress(j.ID, 50, "still going?")

	got, ok := m.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Zero(t, got.Progress.Percent)
}

func TestManager_SweepEvictsOnlyExpiredTerminalJobs(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	done := m.Create("user-1")
	require.NoError(t, m.Complete(done.ID, "report-1"))

	pending := m.Create("user-1")

	time.Sleep(20 * time.Millisecond)
	m.Sweep()

	_, ok := m.Get(done.ID)
	assert.False(t, ok)

	_, ok = m.Get(pending.ID)
	assert.True(t, ok, "non-terminal jobs are never evicted by TTL")
}
