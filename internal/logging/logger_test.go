package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogsMissingFileReturnsEmpty(t *testing.T) {
	l := NewSilent(filepath.Join(t.TempDir(), "does-not-exist.log"))
	entries, err := l.GetLogs("", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetLogsFiltersByLevelAndPagesNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinymem.log")
	lines := []string{
		`{"timestamp":"t1","level":"INFO","message":"one"}`,
		`{"timestamp":"t2","level":"WARN","message":"two"}`,
		`{"timestamp":"t3","level":"INFO","message":"three"}`,
	}
	var data string
	for _, line := range lines {
		data += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	l := NewSilent(path)

	all, err := l.GetLogs("", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].Message)

	infoOnly, err := l.GetLogs("INFO", 10, 0)
	require.NoError(t, err)
	assert.Len(t, infoOnly, 2)

	paged, err := l.GetLogs("", 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "two", paged[0].Message)
}
