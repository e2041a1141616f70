// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns PDF pages into plain text lines with pluggable
// backends: a pure Go reader and poppler's pdftotext run in a container.
package extract

import (
	"context"
	"fmt"

	"github.com/pdiddy/pdf2shp/internal/container"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

// Extractor reads a PDF and returns the text of every page in order.
type Extractor interface {
	// Name identifies the backend in logs and manifests.
	Name() string

	// Extract returns one PageText per page, including empty pages.
	Extract(ctx context.Context, pdfPath string) ([]types.PageText, error)
}

// RuntimeDetector finds a container runtime. Nil uses the first working
// one of docker and podman.
type RuntimeDetector func() (container.Runtime, error)

// New returns the extractor for backend. The detector is only consulted
// for container-based backends.
func New(backend types.ExtractBackend, detect RuntimeDetector) (Extractor, error) {
	switch backend {
	case "", types.BackendNative:
		return NewNativeExtractor(), nil
	case types.BackendPdftotext:
		if detect == nil {
			detect = func() (container.Runtime, error) { return container.Detect("") }
		}
		rt, err := detect()
		if err != nil {
			return nil, fmt.Errorf("pdftotext backend: %w", err)
		}
		return NewPdftotextExtractor(rt), nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q: use native or pdftotext", backend)
	}
}
