package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsConfig_EnsureDirectories(t *testing.T) {
	base := t.TempDir()
	p := PathsConfig{
		DataDir:   filepath.Join(base, "data"),
		OutputDir: filepath.Join(base, "out", "runs"),
		LogsDir:   filepath.Join(base, "logs"),
	}
	require.NoError(t, p.EnsureDirectories())

	for _, dir := range []string{p.DataDir, p.OutputDir, p.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	// idempotent
	assert.NoError(t, p.EnsureDirectories())
}

func TestPathsConfig_RunOutputPath(t *testing.T) {
	p := PathsConfig{OutputDir: "output"}

	tests := []struct {
		label, runID, ext string
		want              string
	}{
		{"hormuz-strike", "3f2a9c1e-0000-4000-8000-000000000000", "xlsx", filepath.Join("output", "hormuz-strike_3f2a9c1e.xlsx")},
		{"XLE vs CL=F", "", ".json", filepath.Join("output", "XLE-vs-CL-F.json")},
		{"  ", "ab", "csv", filepath.Join("output", "run_ab.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, p.RunOutputPath(tt.label, tt.runID, tt.ext))
		})
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baskets.yaml")
	assert.False(t, FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("baskets: []\n"), 0644))
	assert.True(t, FileExists(path))
}
