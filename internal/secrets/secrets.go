// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves tile provider API keys. Keys live either in a
// directory of plain-text files, one key per file named after the key, or in
// PDF2SHP_* environment variables.
//
// Known keys: thunderforest-api-key, maptiler-api-key.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const envPrefix = "PDF2SHP_"

var envReplacer = strings.NewReplacer("-", "_", ".", "_")

// Load returns the non-blank keys found in dir. A missing directory yields an
// empty map. Dotfiles and subdirectories are ignored; unreadable files are
// logged and skipped.
func Load(dir string) (map[string]string, error) {
	keys := map[string]string{}
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return keys, nil
	case err != nil:
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if v, ok := readKey(filepath.Join(dir, e.Name())); ok {
			keys[e.Name()] = v
		}
	}
	return keys, nil
}

func readKey(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("skipping unreadable secret", "path", path, "error", err)
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

// EnvName maps a key name to its environment variable,
// e.g. "maptiler-api-key" to "PDF2SHP_MAPTILER_API_KEY".
func EnvName(name string) string {
	return envPrefix + strings.ToUpper(envReplacer.Replace(name))
}

// Lookup returns the key called name. A non-blank environment variable
// takes precedence over the loaded files.
func Lookup(loaded map[string]string, name string) (string, bool) {
	if v := strings.TrimSpace(os.Getenv(EnvName(name))); v != "" {
		return v, true
	}
	v, ok := loaded[name]
	return v, ok
}
