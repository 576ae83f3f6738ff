package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"document_path": "./project.dawproj",
		"event_port": 19002,
		"gap_threshold": 3
	}`), 0o644))

	require.NoError(t, Init(path))

	require.Equal(t, "./project.dawproj", Keys.DocumentPath)
	require.Equal(t, 19002, Keys.EventPort)
	require.Equal(t, 3, Keys.GapThreshold)
	// Unspecified fields keep their package defaults.
	require.Equal(t, 8765, Keys.WsPort)
	require.Equal(t, 64, Keys.ClientQueueCapacity)
}

func TestInitRequiresDocumentPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"event_port": 9002}`), 0o644))

	err := Init(path)
	require.Error(t, err)
}

func TestInitRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"document_path": "./project.dawproj",
		"not_a_real_field": true
	}`), 0o644))

	err := Init(path)
	require.Error(t, err)
}
