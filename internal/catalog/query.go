// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/pdf2shp/pkg/types"
)

// QueryOptions holds parameters for feature searches.
type QueryOptions struct {
	// Query is matched against feature names. Every word must appear,
	// as a whole word or a prefix.
	Query string

	// Kind filters by geometry kind.
	Kind types.GeometryKind

	// DocumentID filters by document.
	DocumentID string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Kind == "" && q.DocumentID == ""
}

// DocumentSummary is one row of the documents table.
type DocumentSummary struct {
	ID          string                 `json:"id" yaml:"id"`
	Title       string                 `json:"title" yaml:"title"`
	SourceURL   string                 `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	SHA256      string                 `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	SourceCRS   string                 `json:"source_crs" yaml:"source_crs"`
	OutputCRS   string                 `json:"output_crs" yaml:"output_crs"`
	Status      types.ConversionStatus `json:"status" yaml:"status"`
	Pages       int                    `json:"pages" yaml:"pages"`
	Vertices    int                    `json:"vertices" yaml:"vertices"`
	Features    int                    `json:"features" yaml:"features"`
	ConvertedAt time.Time              `json:"converted_at" yaml:"converted_at"`
	GeoJSON     string                 `json:"geojson" yaml:"geojson"`
	Archive     string                 `json:"archive" yaml:"archive"`
	Warnings    []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// DocumentDetail is a document with its layers and features.
type DocumentDetail struct {
	DocumentSummary `yaml:",inline"`
	Layers          []types.LayerSummary  `json:"layers" yaml:"layers"`
	FeatureList     []types.FeatureRecord `json:"feature_list" yaml:"feature_list"`
}

// FeatureResult is a feature with the document it came from.
type FeatureResult struct {
	types.FeatureRecord `yaml:",inline"`
	DocumentID          string `json:"document_id" yaml:"document_id"`
	DocumentTitle       string `json:"document_title" yaml:"document_title"`
}

const documentColumns = `id, title, source_url, sha256, source_crs, output_crs, status,
	pages, vertices, features, converted_at, geojson, archive, warnings`

// Documents lists every catalogued document, newest conversion first.
func (s *Store) Documents(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY converted_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentSummary
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Document returns a document with its layers and features. It returns
// ErrNotFound for unknown IDs.
func (s *Store) Document(ctx context.Context, id string) (*DocumentDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	detail := &DocumentDetail{DocumentSummary: d}

	layerRows, err := s.db.QueryContext(ctx,
		`SELECT name, geometry_type, path, features, min_x, min_y, max_x, max_y
		 FROM layers WHERE document_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("querying layers: %w", err)
	}
	defer layerRows.Close()
	for layerRows.Next() {
		var (
			l    types.LayerSummary
			kind string
		)
		if err := layerRows.Scan(&l.Name, &kind, &l.Path, &l.Features,
			&l.Bound[0], &l.Bound[1], &l.Bound[2], &l.Bound[3]); err != nil {
			return nil, fmt.Errorf("scanning layer: %w", err)
		}
		l.GeometryType = types.GeometryKind(kind)
		detail.Layers = append(detail.Layers, l)
	}
	if err := layerRows.Err(); err != nil {
		return nil, err
	}

	results, err := s.Search(ctx, QueryOptions{DocumentID: id, MaxResults: exportLimit})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		detail.FeatureList = append(detail.FeatureList, r.FeatureRecord)
	}
	return detail, nil
}

// Search queries features with optional full-text matching on names and
// structured filters. Full-text results are ranked by relevance; filter-only
// results are ordered by document and insertion order.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]FeatureResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		match  = ftsQuery(opts.Query)
		useFTS = match != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT f.document_id, d.title, f.name, f.kind, f.layer, f.page,
				f.vertices, f.area_m2, f.length_m
			FROM features_fts
			JOIN features f ON f.rowid = features_fts.rowid
			LEFT JOIN documents d ON f.document_id = d.id
			WHERE features_fts MATCH ?`)
		args = append(args, match)
	} else {
		qb.WriteString(
			`SELECT f.document_id, d.title, f.name, f.kind, f.layer, f.page,
				f.vertices, f.area_m2, f.length_m
			FROM features f
			LEFT JOIN documents d ON f.document_id = d.id
			WHERE 1=1`)
	}

	if opts.Kind != "" {
		qb.WriteString(` AND f.kind = ?`)
		args = append(args, string(opts.Kind))
	}
	if opts.DocumentID != "" {
		qb.WriteString(` AND f.document_id = ?`)
		args = append(args, opts.DocumentID)
	}

	if useFTS {
		qb.WriteString(` ORDER BY features_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY f.document_id, f.rowid`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var results []FeatureResult
	for rows.Next() {
		var (
			r     FeatureResult
			title sql.NullString
			kind  string
			layer sql.NullString
		)
		if err := rows.Scan(&r.DocumentID, &title, &r.Name, &kind, &layer, &r.Page,
			&r.Vertices, &r.AreaM2, &r.LengthM); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Kind = types.GeometryKind(kind)
		r.DocumentTitle = title.String
		r.Layer = layer.String
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (DocumentSummary, error) {
	var (
		d                          DocumentSummary
		title, sourceURL, sum      sql.NullString
		sourceCRS, outputCRS       sql.NullString
		status, convertedAt        sql.NullString
		geojson, archive, warnings sql.NullString
	)
	err := sc.Scan(&d.ID, &title, &sourceURL, &sum, &sourceCRS, &outputCRS, &status,
		&d.Pages, &d.Vertices, &d.Features, &convertedAt, &geojson, &archive, &warnings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scanning document: %w", err)
	}
	d.Title = title.String
	d.SourceURL = sourceURL.String
	d.SHA256 = sum.String
	d.SourceCRS = sourceCRS.String
	d.OutputCRS = outputCRS.String
	d.Status = types.ConversionStatus(status.String)
	d.GeoJSON = geojson.String
	d.Archive = archive.String
	if t, err := time.Parse(time.RFC3339Nano, convertedAt.String); err == nil {
		d.ConvertedAt = t
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &d.Warnings); err != nil {
			return d, fmt.Errorf("decoding warnings of %s: %w", d.ID, err)
		}
	}
	return d, nil
}

var ftsToken = regexp.MustCompile(`[\p{L}\p{N}]+`)

// ftsQuery turns free text into an FTS5 query that requires every word as
// a prefix, so punctuation in user input cannot break the MATCH syntax.
func ftsQuery(q string) string {
	tokens := ftsToken.FindAllString(q, -1)
	for i, t := range tokens {
		tokens[i] = `"` + t + `"*`
	}
	return strings.Join(tokens, " ")
}
