// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch copies or downloads PDFs into the workdir and records
// their metadata.
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf2shp/internal/httputil"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	rawDir      = "raw"
	metadataDir = "metadata"

	// headerWindow is how far into a file the %PDF- marker may appear.
	headerWindow = 1024
)

// ErrNotPDF is returned when fetched content does not carry a PDF header.
var ErrNotPDF = errors.New("not a PDF")

var pdfMagic = []byte("%PDF-")

// BatchResult holds the outcome of a batch fetch run.
type BatchResult struct {
	Fetched   int
	Skipped   int
	Failed    int
	Documents []*types.Document
}

// Total returns the total number of inputs processed.
func (r BatchResult) Total() int {
	return r.Fetched + r.Skipped + r.Failed
}

// HasFailures reports whether any input failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// FetchDocument resolves a single input, copies or downloads the PDF into
// raw/, and writes its metadata. If the PDF already exists on disk the
// fetch is skipped and the stored metadata returned.
func FetchDocument(ctx context.Context, client *http.Client, input string, cfg types.FetchConfig, w io.Writer) (doc *types.Document, skipped bool, err error) {
	t, normalized := Classify(input)
	if t == TypeUnknown {
		return nil, false, fmt.Errorf("not a readable file or http(s) URL: %q", input)
	}

	slug := Slug(t, normalized)
	pdfPath := RawPath(cfg.WorkDir, slug)
	metaPath := MetadataPath(cfg.WorkDir, slug)

	if _, err := os.Stat(pdfPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", slug)
		d, readErr := LoadDocument(cfg.WorkDir, slug)
		if readErr != nil {
			d = &types.Document{ID: slug, PDFPath: pdfPath, SourceURL: normalized, Title: slug}
		}
		return d, true, nil
	}

	if err := ensureDirs(cfg.WorkDir); err != nil {
		return nil, false, err
	}

	var (
		sum  string
		size int64
	)
	switch t {
	case TypePath:
		fmt.Fprintf(w, "copying: %s\n", slug)
		sum, size, err = copyFile(normalized, pdfPath)
	case TypeURL:
		fmt.Fprintf(w, "downloading: %s\n", slug)
		sum, size, err = downloadFile(ctx, client, normalized, pdfPath, cfg)
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching %s: %w", slug, err)
	}

	d := &types.Document{
		ID:               slug,
		SourceURL:        normalized,
		PDFPath:          pdfPath,
		Title:            titleFrom(normalized),
		SHA256:           sum,
		Size:             size,
		Source:           t.String(),
		FetchedAt:        time.Now().UTC(),
		ConversionStatus: types.ConversionNone,
	}
	if err := writeMetadata(d, metaPath); err != nil {
		return nil, false, fmt.Errorf("writing metadata for %s: %w", slug, err)
	}
	return d, false, nil
}

// Store saves an uploaded PDF under raw/ using a slug of name, replacing
// any earlier document with the same slug.
func Store(r io.Reader, name string, cfg types.FetchConfig) (*types.Document, error) {
	slug := SlugName(name)
	if err := ensureDirs(cfg.WorkDir); err != nil {
		return nil, err
	}

	pdfPath := RawPath(cfg.WorkDir, slug)
	sum, size, err := writePDF(r, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", slug, err)
	}

	d := &types.Document{
		ID:               slug,
		SourceURL:        name,
		PDFPath:          pdfPath,
		Title:            titleFrom(name),
		SHA256:           sum,
		Size:             size,
		Source:           "upload",
		FetchedAt:        time.Now().UTC(),
		ConversionStatus: types.ConversionNone,
	}
	if err := writeMetadata(d, MetadataPath(cfg.WorkDir, slug)); err != nil {
		return nil, fmt.Errorf("writing metadata for %s: %w", slug, err)
	}
	return d, nil
}

// FetchBatch processes multiple inputs, printing per-item status and
// returning a summary. It continues after individual failures and waits
// DownloadDelay between consecutive URL downloads.
func FetchBatch(ctx context.Context, client *http.Client, inputs []string, cfg types.FetchConfig, w io.Writer) BatchResult {
	var (
		result     BatchResult
		downloaded bool
	)
	for _, input := range inputs {
		if ctx.Err() != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", input, ctx.Err())
			result.Failed++
			continue
		}
		if t, _ := Classify(input); t == TypeURL {
			if downloaded && cfg.DownloadDelay > 0 {
				sleep(ctx, cfg.DownloadDelay)
			}
			downloaded = true
		}

		doc, wasSkipped, err := FetchDocument(ctx, client, input, cfg, w)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", input, err)
			result.Failed++
			continue
		}
		if wasSkipped {
			result.Skipped++
		} else {
			result.Fetched++
		}
		result.Documents = append(result.Documents, doc)
	}
	fmt.Fprintf(w, "\nBatch summary: %d fetched, %d skipped, %d failed (total: %d)\n",
		result.Fetched, result.Skipped, result.Failed, result.Total())
	return result
}

// LoadDocument reads the metadata sidecar of a fetched document.
func LoadDocument(workDir, id string) (*types.Document, error) {
	data, err := os.ReadFile(MetadataPath(workDir, id))
	if err != nil {
		return nil, err
	}
	var d types.Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", id, err)
	}
	return &d, nil
}

// SaveDocument rewrites the metadata sidecar of d.
func SaveDocument(workDir string, d *types.Document) error {
	return writeMetadata(d, MetadataPath(workDir, d.ID))
}

// RawPath returns where the PDF for id is stored.
func RawPath(workDir, id string) string {
	return filepath.Join(workDir, rawDir, id+".pdf")
}

// MetadataPath returns where the metadata sidecar for id is stored.
func MetadataPath(workDir, id string) string {
	return filepath.Join(workDir, metadataDir, id+".yaml")
}

func ensureDirs(workDir string) error {
	for _, dir := range []string{
		filepath.Join(workDir, rawDir),
		filepath.Join(workDir, metadataDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

func copyFile(src, destPath string) (string, int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return writePDF(f, destPath)
}

// downloadFile fetches url to destPath. 429 and 503 responses are retried.
func downloadFile(ctx context.Context, client *http.Client, url, destPath string, cfg types.FetchConfig) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.MaxRetries)
	if err != nil {
		return "", 0, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return writePDF(resp.Body, destPath)
}

// writePDF streams r to destPath through a temporary file, checking the PDF
// header and hashing the content. The destination is only created when the
// whole stream was written.
func writePDF(r io.Reader, destPath string) (string, int64, error) {
	head := make([]byte, headerWindow)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", 0, fmt.Errorf("reading content: %w", err)
	}
	head = head[:n]
	if !bytes.Contains(head, pdfMagic) {
		return "", 0, ErrNotPDF
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	h := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmpFile, h), io.MultiReader(bytes.NewReader(head), r))
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("writing content: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func titleFrom(source string) string {
	base := filepath.Base(source)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeMetadata(d *types.Document, path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
