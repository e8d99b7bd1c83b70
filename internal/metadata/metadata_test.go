package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "metadata.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReloadParsesRows(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "a1b2c3,N12345,B738\n001122,G-ABCD,C172\n")
	s := NewStore(path)
	require.NoError(t, s.Reload())

	assert.Equal(t, 2, s.Len())
	rec, ok := s.Lookup(0xa1b2c3)
	require.True(t, ok)
	assert.Equal(t, "N12345", rec.Registration)
	assert.Equal(t, "B738", rec.TypeCode)
}

func TestReloadSkipsMalformedRows(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "not-hex,N1\nbadrow\na1b2c3,N12345\n")
	s := NewStore(path)
	require.NoError(t, s.Reload())

	assert.Equal(t, 1, s.Len())
	_, ok := s.Lookup(0xa1b2c3)
	assert.True(t, ok)
}

func TestReloadIfChangedSkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a1b2c3,N12345\n")
	s := NewStore(path)
	require.NoError(t, s.ReloadIfChanged())
	assert.Equal(t, 1, s.Len())

	// Re-reload without touching the file: still one record, no error.
	require.NoError(t, s.ReloadIfChanged())
	assert.Equal(t, 1, s.Len())

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("a1b2c3,N12345\n001122,G-ABCD\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))
	require.NoError(t, s.ReloadIfChanged())
	assert.Equal(t, 2, s.Len())
}

func TestLookupMissingAddress(t *testing.T) {
	s := NewStore("")
	_, ok := s.Lookup(0x123456)
	assert.False(t, ok)
}

func TestReloadOnEmptyPathIsNoop(t *testing.T) {
	s := NewStore("")
	require.NoError(t, s.Reload())
	require.NoError(t, s.ReloadIfChanged())
	assert.Equal(t, 0, s.Len())
}
