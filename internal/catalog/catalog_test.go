// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf2shp/internal/fetch"
	"github.com/pdiddy/pdf2shp/internal/testutil"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	workDir := t.TempDir()

	store, err := NewStore(types.CatalogConfig{WorkDir: workDir, MaxResults: 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, workDir
}

func writeManifest(t *testing.T, workDir string, m types.Manifest) string {
	t.Helper()
	dir := filepath.Join(workDir, outputDir, m.DocumentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleManifest(id string) types.Manifest {
	return types.Manifest{
		DocumentID:  id,
		SourcePDF:   "raw/" + id + ".pdf",
		SourceCRS:   "EPSG:32633 (detected)",
		OutputCRS:   "EPSG:4326",
		ConvertedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:      types.ConversionDone,
		Pages:       2,
		Vertices:    9,
		Features:    3,
		GeoJSON:     id + ".geojson",
		Archive:     id + "_shp.zip",
		Layers: []types.LayerSummary{
			{Name: id + "_polygons", GeometryType: types.KindPolygon, Path: id + "_polygons.shp", Features: 2, Bound: [4]float64{15, 37, 15.01, 37.01}},
			{Name: id + "_lines", GeometryType: types.KindLineString, Path: id + "_lines.shp", Features: 1, Bound: [4]float64{15, 37, 15.02, 37.02}},
		},
		FeatureNames: []types.FeatureRecord{
			{Name: "Parcel 12", Kind: types.KindPolygon, Layer: id + "_polygons", Page: 1, Vertices: 5, AreaM2: 10000},
			{Name: "Parcel 13 North", Kind: types.KindPolygon, Layer: id + "_polygons", Page: 1, Vertices: 4, AreaM2: 2500},
			{Name: "Access Road", Kind: types.KindLineString, Layer: id + "_lines", Page: 2, Vertices: 2, LengthM: 111.8},
		},
	}
}

func ingest(t *testing.T, s *Store) (IngestSummary, string) {
	t.Helper()
	var buf bytes.Buffer
	summary, err := s.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return summary, buf.String()
}

// --- tests ---

func TestNewStore_CreatesSchema(t *testing.T) {
	s, workDir := testSetup(t)
	if _, err := os.Stat(filepath.Join(workDir, indexDir, dbFile)); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	for _, table := range []string{"documents", "layers", "features", "features_fts", "indexing_status"} {
		var n int
		if err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = ?`, table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}

	// Reopening an existing database keeps the schema.
	s2, err := NewStore(types.CatalogConfig{WorkDir: workDir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestIngest(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("plan-a"))
	writeManifest(t, workDir, sampleManifest("plan-b"))

	summary, out := ingest(t, s)
	if summary.Indexed != 2 || summary.Total() != 2 {
		t.Errorf("summary = %+v, want 2 indexed", summary)
	}
	if !strings.Contains(out, "indexing plan-a (3 features)") {
		t.Errorf("output missing indexing line:\n%s", out)
	}
	if _, err := os.Stat(s.ExportPath(FormatYAML)); err != nil {
		t.Errorf("export.yaml not written: %v", err)
	}

	// Unchanged manifests are skipped.
	summary, _ = ingest(t, s)
	if summary.Skipped != 2 || summary.Indexed != 0 {
		t.Errorf("second run = %+v, want 2 skipped", summary)
	}
}

func TestIngest_Update(t *testing.T) {
	s, workDir := testSetup(t)
	path := writeManifest(t, workDir, sampleManifest("plan"))
	ingest(t, s)

	m := sampleManifest("plan")
	m.FeatureNames = m.FeatureNames[:1]
	writeManifest(t, workDir, m)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	summary, out := ingest(t, s)
	if summary.Updated != 1 {
		t.Errorf("summary = %+v, want 1 updated", summary)
	}
	if !strings.Contains(out, "updated plan (1 features)") {
		t.Errorf("output = %q", out)
	}

	results, err := s.Search(context.Background(), QueryOptions{DocumentID: "plan"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("features after update = %d, want 1", len(results))
	}

	// Old names are gone from the full-text index too.
	results, err = s.Search(context.Background(), QueryOptions{Query: "road"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("stale FTS rows: %+v", results)
	}
}

func TestIngest_RemovesMissingAndReportsFailures(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("keep"))
	writeManifest(t, workDir, sampleManifest("gone"))
	ingest(t, s)

	if err := os.RemoveAll(filepath.Join(workDir, outputDir, "gone")); err != nil {
		t.Fatal(err)
	}
	badDir := filepath.Join(workDir, outputDir, "broken")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "manifest.yaml"), []byte("layers: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, out := ingest(t, s)
	if summary.Removed != 1 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %+v, want 1 removed, 1 failed, 1 skipped", summary)
	}
	if !strings.Contains(out, "removed gone") {
		t.Errorf("output = %q", out)
	}
	if _, err := s.Document(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Document(gone) err = %v, want ErrNotFound", err)
	}
}

func TestDocuments(t *testing.T) {
	s, workDir := testSetup(t)
	older := sampleManifest("older")
	older.ConvertedAt = older.ConvertedAt.Add(-time.Hour)
	writeManifest(t, workDir, older)
	newer := sampleManifest("newer")
	newer.Status = types.ConversionPartial
	newer.Warnings = []string{"page 1 line 4: coordinates out of range"}
	writeManifest(t, workDir, newer)
	ingest(t, s)

	docs, err := s.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[0].ID != "newer" || docs[1].ID != "older" {
		t.Errorf("order = %s, %s; want newer first", docs[0].ID, docs[1].ID)
	}
	if docs[0].Status != types.ConversionPartial || len(docs[0].Warnings) != 1 {
		t.Errorf("newer = %+v", docs[0])
	}
	if !docs[1].ConvertedAt.Equal(older.ConvertedAt) {
		t.Errorf("ConvertedAt = %v, want %v", docs[1].ConvertedAt, older.ConvertedAt)
	}
	if docs[1].Title != "older" {
		t.Errorf("Title = %q, want id fallback", docs[1].Title)
	}
}

func TestDocument(t *testing.T) {
	s, workDir := testSetup(t)
	doc, err := fetch.Store(bytes.NewReader(testutil.MinimalPDF([][]string{{"x"}})), "Site Plan.pdf", types.FetchConfig{WorkDir: workDir})
	if err != nil {
		t.Fatal(err)
	}
	writeManifest(t, workDir, sampleManifest(doc.ID))
	ingest(t, s)

	d, err := s.Document(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if d.Title != "Site Plan" || d.SHA256 != doc.SHA256 {
		t.Errorf("document metadata = %+v", d.DocumentSummary)
	}
	if len(d.Layers) != 2 || d.Layers[0].GeometryType != types.KindPolygon {
		t.Errorf("layers = %+v", d.Layers)
	}
	if d.Layers[1].Bound != [4]float64{15, 37, 15.02, 37.02} {
		t.Errorf("bound = %v", d.Layers[1].Bound)
	}
	if len(d.FeatureList) != 3 || d.FeatureList[2].Name != "Access Road" {
		t.Errorf("features = %+v", d.FeatureList)
	}

	if _, err := s.Document(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDocument_CorruptWarnings(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("plan"))
	ingest(t, s)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET warnings = '{not json' WHERE id = 'plan'`); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Document(ctx, "plan"); err == nil || !strings.Contains(err.Error(), "decoding warnings of plan") {
		t.Errorf("Document err = %v, want warnings decode error", err)
	}
	if _, err := s.Documents(ctx); err == nil {
		t.Error("Documents: expected error")
	}
}

func TestSearch(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("plan-a"))
	writeManifest(t, workDir, sampleManifest("plan-b"))
	ingest(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		opts QueryOptions
		want int
	}{
		{"full word", QueryOptions{Query: "parcel"}, 4},
		{"prefix", QueryOptions{Query: "parc"}, 4},
		{"all words required", QueryOptions{Query: "parcel north"}, 2},
		{"punctuation ignored", QueryOptions{Query: `"road"-(access`}, 2},
		{"kind filter", QueryOptions{Kind: types.KindLineString}, 2},
		{"document filter", QueryOptions{DocumentID: "plan-b"}, 3},
		{"query and document", QueryOptions{Query: "parcel", DocumentID: "plan-a"}, 2},
		{"no match", QueryOptions{Query: "station"}, 0},
		{"max results", QueryOptions{MaxResults: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("len = %d, want %d: %+v", len(results), tt.want, results)
			}
		})
	}

	results, err := s.Search(ctx, QueryOptions{Query: "road", DocumentID: "plan-a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	r := results[0]
	if r.DocumentID != "plan-a" || r.DocumentTitle != "plan-a" || r.Layer != "plan-a_lines" || r.LengthM != 111.8 {
		t.Errorf("result = %+v", r)
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"parcel", `"parcel"*`},
		{"Lot-7 north", `"Lot"* "7"* "north"*`},
		{`"; DROP`, `"DROP"*`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("plan"))
	ingest(t, s)
	ctx := context.Background()

	path, err := s.Export(ctx, FormatJSON, QueryOptions{Kind: types.KindPolygon})
	if err != nil {
		t.Fatalf("Export json: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["name"] != "Parcel 12" || entries[0]["document_id"] != "plan" {
		t.Errorf("entry = %v", entries[0])
	}

	path, err = s.Export(ctx, FormatYAML, QueryOptions{Query: "nothing-matches-this"})
	if err != nil {
		t.Fatalf("Export yaml: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty export = %q, want []", data)
	}

	if _, err := s.Export(ctx, Format("csv"), QueryOptions{}); err == nil {
		t.Error("Export csv: expected error")
	}
}

func TestIngestDocument(t *testing.T) {
	s, workDir := testSetup(t)
	writeManifest(t, workDir, sampleManifest("plan"))

	if err := s.IngestDocument(context.Background(), "plan"); err != nil {
		t.Fatalf("IngestDocument: %v", err)
	}
	if _, err := s.Document(context.Background(), "plan"); err != nil {
		t.Errorf("Document: %v", err)
	}

	// A later full ingest sees the same mod time and skips it.
	summary, _ := ingest(t, s)
	if summary.Skipped != 1 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}

	if err := s.IngestDocument(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing manifest")
	}
}
