// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert runs the PDF-to-shapefile pipeline for a document:
// extract page text, parse coordinates, build and reproject geometries,
// then write the shapefiles, vertex table, GeoJSON, archive and manifest.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf2shp/internal/crs"
	"github.com/pdiddy/pdf2shp/internal/export"
	"github.com/pdiddy/pdf2shp/internal/extract"
	"github.com/pdiddy/pdf2shp/internal/fetch"
	"github.com/pdiddy/pdf2shp/internal/geometry"
	"github.com/pdiddy/pdf2shp/internal/parse"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	// outputDir is the subdirectory under the workdir holding one
	// directory of outputs per document.
	outputDir = "output"
	// rawDir is the subdirectory under the workdir for fetched PDFs.
	rawDir = "raw"

	manifestFile = "manifest.yaml"

	// autoUTM selects the UTM zone containing the centre of the features.
	autoUTM = "utm"
)

// ErrNoCoordinates is returned when a document yields no coordinate rows.
var ErrNoCoordinates = errors.New("no coordinates found")

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Partial   int
	Skipped   int
	Failed    int
}

// Total returns the total number of documents processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Partial + r.Skipped + r.Failed
}

// HasFailures reports whether any document failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// OutputDir returns the directory holding the outputs of document id.
func OutputDir(workDir, id string) string {
	return filepath.Join(workDir, outputDir, id)
}

// ManifestPath returns the manifest location for document id.
func ManifestPath(workDir, id string) string {
	return filepath.Join(OutputDir(workDir, id), manifestFile)
}

// ConvertDocument converts a single document, printing a status line to w.
// If the manifest already exists and cfg.Export.Force is false the
// document is skipped and ConversionNone returned with the stored manifest.
func ConvertDocument(ctx context.Context, ex extract.Extractor, doc types.Document, cfg types.ConversionConfig, w io.Writer) (*types.Manifest, types.ConversionStatus) {
	if !cfg.Export.Force {
		if m, err := LoadManifest(cfg.WorkDir, doc.ID); err == nil {
			fmt.Fprintf(w, "skipped: %s (already converted)\n", doc.ID)
			return m, types.ConversionNone
		}
	}

	m, err := Convert(ctx, ex, doc, cfg)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", doc.ID, err)
		recordStatus(cfg.WorkDir, doc.ID, types.ConversionFailed, w)
		return nil, types.ConversionFailed
	}

	switch m.Status {
	case types.ConversionPartial:
		fmt.Fprintf(w, "partial: %s (%d features, %d warnings)\n", doc.ID, m.Features, len(m.Warnings))
		for _, warning := range m.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	default:
		fmt.Fprintf(w, "converted: %s (%d features in %s)\n", doc.ID, m.Features, m.OutputCRS)
	}
	recordStatus(cfg.WorkDir, doc.ID, m.Status, w)
	return m, m.Status
}

// Convert runs the whole pipeline for doc and writes its outputs, replacing
// any earlier outputs. Warnings make the result partial; a document with no
// coordinates, or with projected coordinates and no known CRS, is an error.
func Convert(ctx context.Context, ex extract.Extractor, doc types.Document, cfg types.ConversionConfig) (*types.Manifest, error) {
	opts, err := parseOptions(cfg.Parse)
	if err != nil {
		return nil, err
	}

	pages, err := ex.Extract(ctx, doc.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	res := parse.ParsePages(pages, opts)
	if res.Vertices == 0 {
		return nil, ErrNoCoordinates
	}

	wgs, err := geometry.ToWGS84(res.Groups, res.CRS)
	if errors.Is(err, geometry.ErrUnknownCRS) {
		return nil, fmt.Errorf("%w; set the source CRS (e.g. --source-crs EPSG:32633)", err)
	}
	if err != nil {
		return nil, err
	}

	features, buildWarnings := geometry.Build(wgs, cfg.Parse.Geometry)
	if len(features) == 0 {
		return nil, ErrNoCoordinates
	}

	out, err := outputCRS(cfg.Export.OutputCRS, features)
	if err != nil {
		return nil, err
	}
	projected, err := geometry.Reproject(features, out)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := OutputDir(cfg.WorkDir, doc.ID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing %s: %w", dir, err)
	}
	source := filepath.Base(doc.PDFPath)

	layers, err := export.WriteShapefiles(dir, doc.ID, projected, out, source)
	if err != nil {
		return nil, err
	}
	if cfg.Export.Vertices {
		vl, err := export.WriteVertexLayer(dir, doc.ID, features, out, source)
		if err != nil {
			return nil, err
		}
		layers = append(layers, vl)
	}

	tablePath := filepath.Join(dir, doc.ID+"_vertices.csv")
	if err := export.WriteVertexTable(tablePath, features); err != nil {
		return nil, err
	}
	geojsonPath := filepath.Join(dir, doc.ID+".geojson")
	if err := export.WriteGeoJSON(geojsonPath, geometry.FeatureCollection(features)); err != nil {
		return nil, err
	}

	archived := []string{tablePath}
	for _, l := range layers {
		archived = append(archived, export.LayerFiles(l.Path)...)
	}
	archivePath := filepath.Join(dir, doc.ID+"_shp.zip")
	if err := export.Zip(archivePath, archived); err != nil {
		return nil, err
	}

	m := &types.Manifest{
		DocumentID:   doc.ID,
		SourcePDF:    doc.PDFPath,
		SourceCRS:    sourceCRSName(res),
		OutputCRS:    out.String(),
		ConvertedAt:  time.Now().UTC(),
		Status:       types.ConversionDone,
		Pages:        len(pages),
		Vertices:     res.Vertices,
		Features:     len(features),
		GeoJSON:      filepath.Base(geojsonPath),
		Archive:      filepath.Base(archivePath),
		FeatureNames: featureRecords(doc.ID, features),
		Warnings:     append(append([]string{}, res.Warnings...), buildWarnings...),
	}
	for _, l := range layers {
		l.Path = filepath.Base(l.Path)
		m.Layers = append(m.Layers, l)
	}
	if len(m.Warnings) > 0 {
		m.Status = types.ConversionPartial
	}

	if err := writeManifest(m, ManifestPath(cfg.WorkDir, doc.ID)); err != nil {
		return nil, err
	}
	return m, nil
}

// ConvertBatch processes documents through the extractor, printing
// per-document status to w and returning a summary.
func ConvertBatch(ctx context.Context, ex extract.Extractor, docs []types.Document, cfg types.ConversionConfig, w io.Writer) BatchResult {
	var result BatchResult
	for _, d := range docs {
		_, status := ConvertDocument(ctx, ex, d, cfg, w)
		switch status {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionPartial:
			result.Partial++
		case types.ConversionNone:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d partial, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Partial, result.Skipped, result.Failed, result.Total())
	return result
}

// ConvertPaths builds Document records from PDF paths and delegates to
// ConvertBatch. Each document ID is the slug of the file name.
func ConvertPaths(ctx context.Context, ex extract.Extractor, pdfPaths []string, cfg types.ConversionConfig, w io.Writer) BatchResult {
	docs := make([]types.Document, len(pdfPaths))
	for i, p := range pdfPaths {
		docs[i] = types.Document{
			ID:      fetch.SlugName(p),
			PDFPath: p,
			Title:   strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
		}
	}
	return ConvertBatch(ctx, ex, docs, cfg, w)
}

// FetchedDocuments lists every PDF under raw/, using the metadata sidecar
// when one exists.
func FetchedDocuments(workDir string) ([]types.Document, error) {
	paths, err := filepath.Glob(filepath.Join(workDir, rawDir, "*.pdf"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	docs := make([]types.Document, 0, len(paths))
	for _, p := range paths {
		id := strings.TrimSuffix(filepath.Base(p), ".pdf")
		if d, err := fetch.LoadDocument(workDir, id); err == nil {
			d.PDFPath = p
			docs = append(docs, *d)
			continue
		}
		docs = append(docs, types.Document{ID: id, PDFPath: p, Title: id})
	}
	return docs, nil
}

// LoadManifest reads the manifest written for document id.
func LoadManifest(workDir, id string) (*types.Manifest, error) {
	return ReadManifest(ManifestPath(workDir, id))
}

// ReadManifest reads a manifest file.
func ReadManifest(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

func parseOptions(cfg types.ParseConfig) (parse.Options, error) {
	opts := parse.Options{SwapAxes: cfg.SwapAxes}
	if !cfg.Geometry.Valid() {
		return opts, fmt.Errorf("unknown geometry %q: use auto, point, linestring or polygon", cfg.Geometry)
	}
	if cfg.SourceCRS != "" {
		c, err := crs.Parse(cfg.SourceCRS)
		if err != nil {
			return opts, fmt.Errorf("source CRS: %w", err)
		}
		opts.SourceCRS = c
	}
	return opts, nil
}

// outputCRS resolves the configured output CRS. Empty means WGS 84 and
// "utm" the zone containing the centre of the features.
func outputCRS(name string, features []geometry.Feature) (crs.CRS, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return crs.WGS84, nil
	case autoUTM:
		c := geometry.Bound(features).Center()
		return crs.ZoneFor(c[0], c[1]), nil
	}
	c, err := crs.Parse(name)
	if err != nil {
		return crs.CRS{}, fmt.Errorf("output CRS: %w", err)
	}
	return c, nil
}

func sourceCRSName(res parse.Result) string {
	if res.CRS.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s)", res.CRS, res.CRSSource)
}

func featureRecords(id string, features []geometry.Feature) []types.FeatureRecord {
	records := make([]types.FeatureRecord, len(features))
	for i, f := range features {
		records[i] = types.FeatureRecord{
			Name:     f.Name,
			Kind:     f.Kind,
			Layer:    id + "_" + layerSuffix(f.Kind),
			Page:     f.Page,
			Vertices: len(f.Vertices),
			AreaM2:   f.AreaM2,
			LengthM:  f.LengthM,
		}
	}
	return records
}

func layerSuffix(k types.GeometryKind) string {
	switch k {
	case types.KindPolygon:
		return "polygons"
	case types.KindLineString:
		return "lines"
	default:
		return "points"
	}
}

func writeManifest(m *types.Manifest, path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// recordStatus updates the metadata sidecar of a fetched document. PDFs
// converted straight from a path have no sidecar and are left alone. Other
// failures are reported on w and do not change the conversion result.
func recordStatus(workDir, id string, status types.ConversionStatus, w io.Writer) {
	d, err := fetch.LoadDocument(workDir, id)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err == nil {
		d.ConversionStatus = status
		err = fetch.SaveDocument(workDir, d)
	}
	if err != nil {
		fmt.Fprintf(w, "  warning: recording status for %s: %v\n", id, err)
	}
}
