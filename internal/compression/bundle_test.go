package compression

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "gs.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestPrepareBundle(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"ghostscript/bin/gs":         "#!/bin/sh\n",
		"ghostscript/lib/libgs.so.9": "elf",
	})
	dir := filepath.Join(t.TempDir(), "bundle")

	path, err := PrepareBundle(archive, dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, BundledBinary(dir), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "gs must be executable")

	// second call reuses the extracted copy
	require.NoError(t, os.Remove(archive))
	again, err := PrepareBundle(archive, dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestPrepareBundleRejectsTraversal(t *testing.T) {
	archive := writeArchive(t, map[string]string{"../escape": "x"})
	_, err := PrepareBundle(archive, filepath.Join(t.TempDir(), "bundle"), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal file path")
}

func TestPrepareBundleWithoutBinary(t *testing.T) {
	archive := writeArchive(t, map[string]string{"readme.txt": "hi"})
	dir := filepath.Join(t.TempDir(), "bundle")
	_, err := PrepareBundle(archive, dir, zerolog.Nop())
	require.Error(t, err)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
