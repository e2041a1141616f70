// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Format selects the encoding of a catalog export.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// exportLimit caps exports and document detail listings.
const exportLimit = 100000

var encoders = map[Format]func(any) ([]byte, error){
	FormatYAML: yaml.Marshal,
	FormatJSON: func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
}

// Export writes the features matching opts to index/export.<format> and
// returns the file path. A zero MaxResults exports every match; an empty
// match is written as an empty list.
func (s *Store) Export(ctx context.Context, format Format, opts QueryOptions) (string, error) {
	encode, ok := encoders[format]
	if !ok {
		return "", fmt.Errorf("unknown export format %q: use yaml or json", format)
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	features, err := s.Search(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}
	if features == nil {
		features = []FeatureResult{}
	}

	data, err := encode(features)
	if err != nil {
		return "", fmt.Errorf("encoding %s export: %w", format, err)
	}

	path := s.ExportPath(format)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}

// ExportPath returns where Export writes the given format.
func (s *Store) ExportPath(format Format) string {
	return filepath.Join(s.workDir, indexDir, "export."+string(format))
}
