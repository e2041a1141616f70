// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// secretsDir creates a directory holding one file per entry. Entries ending
// in "/" become subdirectories.
func secretsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  map[string]string
	}{
		{
			name: "tile provider keys are trimmed",
			files: map[string]string{
				"thunderforest-api-key": "  tf_abc123  \n",
				"maptiler-api-key":      "mt_xyz789",
			},
			want: map[string]string{
				"thunderforest-api-key": "tf_abc123",
				"maptiler-api-key":      "mt_xyz789",
			},
		},
		{
			name: "blank files, dotfiles and directories are ignored",
			files: map[string]string{
				"maptiler-api-key": "mt_1",
				"empty":            "",
				"blank":            " \n\t ",
				".gitkeep":         "",
				".old-key":         "stale",
				"archive/":         "",
			},
			want: map[string]string{"maptiler-api-key": "mt_1"},
		},
		{
			name:  "empty directory",
			files: map[string]string{},
			want:  map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(secretsDir(t, tt.files))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), ".secrets"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "reading secrets directory")
}

func TestLoad_SkipsUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := secretsDir(t, map[string]string{"maptiler-api-key": "mt_ok"})
	locked := filepath.Join(dir, "thunderforest-api-key")
	require.NoError(t, os.WriteFile(locked, []byte("tf"), 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"maptiler-api-key": "mt_ok"}, got)
}

func TestLookup(t *testing.T) {
	loaded := map[string]string{"thunderforest-api-key": "from-file"}

	v, ok := Lookup(loaded, "thunderforest-api-key")
	assert.True(t, ok)
	assert.Equal(t, "from-file", v)

	t.Setenv("PDF2SHP_THUNDERFOREST_API_KEY", "from-env")
	v, ok = Lookup(loaded, "thunderforest-api-key")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)

	t.Setenv("PDF2SHP_MAPTILER_API_KEY", "   ")
	_, ok = Lookup(loaded, "maptiler-api-key")
	assert.False(t, ok)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PDF2SHP_MAPTILER_API_KEY", EnvName("maptiler-api-key"))
	assert.Equal(t, "PDF2SHP_STADIA_KEY", EnvName("stadia.key"))
}
