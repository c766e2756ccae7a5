package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("lab report bytes")
	hash, err := s.Put(data)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFileStore_PutIsIdempotent(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("same bytes twice")
	h1, err := s.Put(data)
	require.NoError(t, err)
	h2, err := s.Put(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestChecksum_MatchesPutHash(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("checksum me")
	hash, err := s.Put(data)
	require.NoError(t, err)

	sum, err := Checksum(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hash, sum)
}
