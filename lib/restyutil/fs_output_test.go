package restyutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemOutputWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "resty", "dumps")
	out := NewFilesystemOutput(dir)

	out.Write("1", "---- REQUEST ----")

	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "---- REQUEST ----", string(contents))
}

func TestFilesystemOutputKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0600))

	out := NewFilesystemOutput(dir)
	out.Write("1", "dump")

	contents, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(contents))
}
