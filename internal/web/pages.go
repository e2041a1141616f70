// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"km2": func(m2 float64) float64 { return m2 / 1e6 },
}).ParseFS(templateFS, "templates/*.html"))

type indexPage struct {
	Documents   []catalog.DocumentSummary
	Error       string
	MaxUploadMB int
	Geometries  []types.GeometryKind
}

type mapPage struct {
	Document   *catalog.DocumentDetail
	Basemaps   []basemapView
	GeoJSONURL string
	ArchiveURL string
	PreviewURL string
}

// render executes a page template into a buffer so template errors still
// produce a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("rendering page", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
