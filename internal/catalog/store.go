// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog indexes converted documents, their layers and features
// in SQLite, with full-text search over feature names.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pdf2shp/internal/convert"
	"github.com/pdiddy/pdf2shp/internal/fetch"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	indexDir  = "index"
	outputDir = "output"
	dbFile    = "catalog.db"

	defaultMaxResults = 20
)

// ErrNotFound is returned when a document is not in the catalog.
var ErrNotFound = errors.New("document not found")

// Store manages the catalog SQLite database.
type Store struct {
	db         *sql.DB
	workDir    string
	maxResults int
}

// NewStore opens or creates the catalog database at
// workDir/index/catalog.db, creating the schema if it does not exist.
func NewStore(cfg types.CatalogConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.WorkDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s := &Store{
		db:         db,
		workDir:    cfg.WorkDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			source_url TEXT,
			sha256 TEXT,
			source_crs TEXT,
			output_crs TEXT,
			status TEXT,
			pages INTEGER,
			vertices INTEGER,
			features INTEGER,
			converted_at TEXT,
			geojson TEXT,
			archive TEXT,
			warnings TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS layers (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			geometry_type TEXT NOT NULL,
			path TEXT,
			features INTEGER,
			min_x REAL, min_y REAL, max_x REAL, max_y REAL,
			PRIMARY KEY (document_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS features (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			layer TEXT,
			page INTEGER,
			vertices INTEGER,
			area_m2 REAL,
			length_m REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_features_document_id ON features(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_features_kind ON features(kind)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			document_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='features_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE features_fts USING fts5(name, content=features, content_rowid=rowid)`,
			`CREATE TRIGGER features_ai AFTER INSERT ON features BEGIN
				INSERT INTO features_fts(rowid, name) VALUES (new.rowid, new.name);
			END`,
			`CREATE TRIGGER features_ad AFTER DELETE ON features BEGIN
				INSERT INTO features_fts(features_fts, rowid, name) VALUES('delete', old.rowid, old.name);
			END`,
			`CREATE TRIGGER features_au AFTER UPDATE ON features BEGIN
				INSERT INTO features_fts(features_fts, rowid, name) VALUES('delete', old.rowid, old.name);
				INSERT INTO features_fts(rowid, name) VALUES (new.rowid, new.name);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// IngestSummary holds counts from a catalog indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Removed int
	Failed  int
}

// Total returns the number of manifests processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest reads every manifest under workDir/output/ and updates the
// catalog. Manifests unchanged since the last run are skipped, and
// documents whose outputs were deleted are dropped. When anything changed
// it rewrites index/export.yaml.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary

	paths, err := filepath.Glob(filepath.Join(s.workDir, outputDir, "*", "manifest.yaml"))
	if err != nil {
		return summary, err
	}
	sort.Strings(paths)

	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		id := filepath.Base(filepath.Dir(path))
		seen[id] = true

		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE document_id = ?`, id,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", id)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		m, err := convert.ReadManifest(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}
		if m.DocumentID == "" {
			m.DocumentID = id
		}

		if err := s.ingestManifest(ctx, m, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d features)\n", id, len(m.FeatureNames))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d features)\n", id, len(m.FeatureNames))
			summary.Indexed++
		}
	}

	removed, err := s.removeMissing(ctx, seen, w)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, removed: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Removed, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 || summary.Removed > 0 {
		if _, err := s.Export(ctx, FormatYAML, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}
	return summary, nil
}

// IngestDocument indexes the manifest of a single document, replacing any
// earlier rows for it.
func (s *Store) IngestDocument(ctx context.Context, id string) error {
	path := convert.ManifestPath(s.workDir, id)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	m, err := convert.ReadManifest(path)
	if err != nil {
		return err
	}
	return s.ingestManifest(ctx, m, info.ModTime().UTC().Format(time.RFC3339Nano))
}

func (s *Store) ingestManifest(ctx context.Context, m *types.Manifest, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE document_id = ?`, m.DocumentID); err != nil {
		return fmt.Errorf("deleting old features: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM layers WHERE document_id = ?`, m.DocumentID); err != nil {
		return fmt.Errorf("deleting old layers: %w", err)
	}

	title, sourceURL, sum := m.DocumentID, m.SourcePDF, ""
	if d, err := fetch.LoadDocument(s.workDir, m.DocumentID); err == nil {
		if d.Title != "" {
			title = d.Title
		}
		sourceURL, sum = d.SourceURL, d.SHA256
	}
	warningsJSON, _ := json.Marshal(m.Warnings)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source_url, sha256, source_crs, output_crs, status,
			pages, vertices, features, converted_at, geojson, archive, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, source_url=excluded.source_url, sha256=excluded.sha256,
			source_crs=excluded.source_crs, output_crs=excluded.output_crs, status=excluded.status,
			pages=excluded.pages, vertices=excluded.vertices, features=excluded.features,
			converted_at=excluded.converted_at, geojson=excluded.geojson,
			archive=excluded.archive, warnings=excluded.warnings`,
		m.DocumentID, title, sourceURL, sum, m.SourceCRS, m.OutputCRS, string(m.Status),
		m.Pages, m.Vertices, m.Features, m.ConvertedAt.UTC().Format(time.RFC3339Nano),
		m.GeoJSON, m.Archive, string(warningsJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	for _, l := range m.Layers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO layers (document_id, name, geometry_type, path, features, min_x, min_y, max_x, max_y)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.DocumentID, l.Name, string(l.GeometryType), l.Path, l.Features,
			l.Bound[0], l.Bound[1], l.Bound[2], l.Bound[3],
		)
		if err != nil {
			return fmt.Errorf("inserting layer %s: %w", l.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (document_id, name, kind, layer, page, vertices, area_m2, length_m)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range m.FeatureNames {
		if _, err := stmt.ExecContext(ctx,
			m.DocumentID, f.Name, string(f.Kind), f.Layer, f.Page, f.Vertices, f.AreaM2, f.LengthM,
		); err != nil {
			return fmt.Errorf("inserting feature %s: %w", f.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (document_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		m.DocumentID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return tx.Commit()
}

// removeMissing deletes documents whose manifest no longer exists.
func (s *Store) removeMissing(ctx context.Context, seen map[string]bool, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if err := s.Remove(ctx, id); err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "removed %s\n", id)
	}
	return len(stale), nil
}

// Remove deletes a document and its layers and features from the catalog.
func (s *Store) Remove(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM features WHERE document_id = ?`,
		`DELETE FROM layers WHERE document_id = ?`,
		`DELETE FROM indexing_status WHERE document_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
	}
	return tx.Commit()
}
