package slicedecoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecompressFileRoundTrips(t *testing.T) {
	raw := buildSlice(t)
	compressed := compress(t, raw)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "slice.bin.zst")
	destPath := filepath.Join(dir, "slice.bin")
	require.NoError(t, os.WriteFile(srcPath, compressed, 0o600))

	require.NoError(t, DecompressFile(srcPath, destPath))

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestDecompressFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := DecompressFile(filepath.Join(dir, "missing.zst"), filepath.Join(dir, "out"))
	require.Error(t, err)
}
