package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(time.Minute, 10, nil)
	s := m.Create("user-1")
	require.NotEmpty(t, s.ID)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)
	assert.Empty(t, got.SelectedPatient)
}

func TestManager_AcquireIsSingleHolder(t *testing.T) {
	m := NewManager(time.Minute, 10, nil)
	s := m.Create("user-1")

	ok, err := m.Acquire(s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Acquire(s.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while busy must fail")

	m.Release(s.ID)

	ok, err = m.Acquire(s.ID)
	require.NoError(t, err)
	assert.True(t, ok, "acquire after release must succeed")
}

func TestManager_AppendMessagesTrimsToBound(t *testing.T) {
	m := NewManager(time.Minute, 3, nil)
	s := m.Create("user-1")

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendMessages(s.ID, Message{Role: RoleUser, Content: "hi"}))
	}

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 3)
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	var expiredID string
	m := NewManager(10*time.Millisecond, 10, func(id string) { expiredID = id })
	s := m.Create("user-1")

	time.Sleep(20 * time.Millisecond)
	m.Sweep()

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, s.ID, expiredID)
}

func TestManager_SelectPatientUnknownSession(t *testing.T) {
	m := NewManager(time.Minute, 10, nil)
	err := m.SelectPatient("missing", "patient-1")
	assert.Error(t, err)
}
