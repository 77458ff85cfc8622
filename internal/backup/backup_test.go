package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/cryptoutil"
)

func writeTestProfile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "database"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "database", "coheara.db"), []byte("fake-db"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "originals"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "originals", "report.pdf"), []byte("pdf-bytes"), 0o600))
	return dir
}

func TestCreateThenPreviewRoundTrip(t *testing.T) {
	profileDir := writeTestProfile(t)
	salt := []byte("0123456789abcdef")
	key, err := cryptoutil.DerivePasswordKey("hunter2", salt)
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "export.coheara-backup")
	result, err := Create(CreateRequest{
		ProfileDir:    profileDir,
		ProfileName:   "Alice",
		Salt:          salt,
		DocumentCount: 3,
		Key:           key,
	}, outputPath)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalDocs)

	preview, err := PreviewFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "Alice", preview.Metadata.ProfileName)
	assert.True(t, preview.Compatible)
}

func TestRestoreRoundTrip(t *testing.T) {
	profileDir := writeTestProfile(t)
	salt := []byte("0123456789abcdef")
	key, err := cryptoutil.DerivePasswordKey("hunter2", salt)
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "export.coheara-backup")
	_, err = Create(CreateRequest{
		ProfileDir:    profileDir,
		ProfileName:   "Alice",
		Salt:          salt,
		DocumentCount: 1,
		Key:           key,
	}, outputPath)
	require.NoError(t, err)

	restoreDir := t.TempDir()
	result, err := Restore(outputPath, "hunter2", restoreDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsRestored)
	assert.Empty(t, result.Warnings)

	restored, err := os.ReadFile(filepath.Join(restoreDir, "database", "coheara.db"))
	require.NoError(t, err)
	assert.Equal(t, "fake-db", string(restored))
}

func TestRestoreWrongPasswordFails(t *testing.T) {
	profileDir := writeTestProfile(t)
	salt := []byte("0123456789abcdef")
	key, err := cryptoutil.DerivePasswordKey("hunter2", salt)
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "export.coheara-backup")
	_, err = Create(CreateRequest{ProfileDir: profileDir, ProfileName: "Alice", Salt: salt, Key: key}, outputPath)
	require.NoError(t, err)

	_, err = Restore(outputPath, "wrongpassword", t.TempDir())
	require.Error(t, err)
}

func TestPreviewRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.coheara-backup")
	require.NoError(t, os.WriteFile(path, []byte("not-a-backup-file"), 0o600))

	_, err := PreviewFile(path)
	require.Error(t, err)
}
