// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pdiddy/pdf2shp/internal/container"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const imagePoppler = "minidocks/poppler:latest"

// pdftotextArgs keeps the column layout so coordinate tables stay on one line.
var pdftotextArgs = []string{"pdftotext", "-layout", "-enc", "UTF-8", "-", "-"}

// PdftotextExtractor pipes PDFs through poppler's pdftotext inside a
// container. Pages come back separated by form feeds.
type PdftotextExtractor struct {
	runtime container.Runtime

	mu    sync.Mutex
	ready bool
}

// NewPdftotextExtractor returns an extractor running in rt. The poppler
// image is pulled on first use when it is missing.
func NewPdftotextExtractor(rt container.Runtime) *PdftotextExtractor {
	return &PdftotextExtractor{runtime: rt}
}

func (p *PdftotextExtractor) ensureImage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	if err := container.EnsureImage(ctx, p.runtime, imagePoppler); err != nil {
		return fmt.Errorf("poppler image not available in %s: %w", p.runtime.Name(), err)
	}
	p.ready = true
	return nil
}

func (p *PdftotextExtractor) Name() string { return string(types.BackendPdftotext) }

func (p *PdftotextExtractor) Extract(ctx context.Context, pdfPath string) ([]types.PageText, error) {
	if err := p.ensureImage(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := p.runtime.Run(ctx, imagePoppler, pdftotextArgs, f, &out); err != nil {
		return nil, fmt.Errorf("extracting %s with pdftotext: %w", pdfPath, err)
	}
	return splitPages(out.String()), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext ends every
// page, including the last, with a form feed.
func splitPages(text string) []types.PageText {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]types.PageText, len(parts))
	for i, part := range parts {
		pages[i] = types.PageText{Number: i + 1, Text: strings.TrimRight(part, "\n")}
	}
	return pages
}
