// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/pdiddy/pdf2shp/internal/basemap"
	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/internal/convert"
	"github.com/pdiddy/pdf2shp/internal/fetch"
	"github.com/pdiddy/pdf2shp/internal/preview"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	// multipartMemory is how much of an upload is held in memory before
	// spilling to a temporary file.
	multipartMemory = 8 << 20

	tileMaxAge = 24 * time.Hour

	minPreviewSize = 64
	maxPreviewSize = 4096
)

// basemapView is the public description of a tile provider.
type basemapView struct {
	Name        string `json:"name"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"max_zoom"`
	TileURL     string `json:"tile_url"`
	Default     bool   `json:"default"`
}

func (s *Server) workDir() string {
	return s.cfg.Conversion.WorkDir
}

func (s *Server) basemaps() []basemapView {
	if s.tiles == nil {
		return []basemapView{}
	}
	reg := s.tiles.Registry()
	def := reg.Default().Name
	out := []basemapView{}
	for _, p := range reg.Providers() {
		out = append(out, basemapView{
			Name:        p.Name,
			Attribution: p.Attribution,
			MaxZoom:     p.MaxZoom,
			TileURL:     "/tiles/" + url.PathEscape(p.Name) + "/{z}/{x}/{y}",
			Default:     p.Name == def,
		})
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, message string) {
	docs, err := s.catalog.Documents(r.Context())
	if err != nil {
		s.logger.Error("listing documents", "error", err)
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	s.render(w, status, "index.html", indexPage{
		Documents:   docs,
		Error:       message,
		MaxUploadMB: s.cfg.Server.MaxUploadMB,
		Geometries:  []types.GeometryKind{types.KindAuto, types.KindPolygon, types.KindLineString, types.KindPoint},
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.renderIndex(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("The upload is larger than %d MB.", s.cfg.Server.MaxUploadMB))
			return
		}
		s.renderIndex(w, r, http.StatusBadRequest, "Could not read the upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, "Choose a PDF file to convert.")
		return
	}
	defer file.Close()

	cfg, err := s.conversionConfig(r.Form)
	if err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := fetch.SlugName(header.Filename)
	if !s.claim(id) {
		s.renderIndex(w, r, http.StatusConflict, fmt.Sprintf("%s is already being converted.", id))
		return
	}
	defer s.release(id)

	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	m, status, err := s.convertUpload(r.Context(), file, header.Filename, cfg)
	if err != nil {
		s.renderIndex(w, r, status, fmt.Sprintf("%s: %v", header.Filename, err))
		return
	}
	http.Redirect(w, r, "/maps/"+url.PathEscape(m.DocumentID), http.StatusSeeOther)
}

// conversionConfig applies the upload form's options over the configured
// defaults. Uploads always replace earlier outputs.
func (s *Server) conversionConfig(form url.Values) (types.ConversionConfig, error) {
	cfg := s.cfg.Conversion
	cfg.Export.Force = true
	if v := strings.TrimSpace(form.Get("source_crs")); v != "" {
		cfg.Parse.SourceCRS = v
	}
	if v := strings.TrimSpace(form.Get("output_crs")); v != "" {
		cfg.Export.OutputCRS = v
	}
	if v := form.Get("geometry"); v != "" {
		cfg.Parse.Geometry = types.GeometryKind(v)
		if !cfg.Parse.Geometry.Valid() {
			return cfg, fmt.Errorf("unknown geometry %q", v)
		}
	}
	if form.Get("swap_axes") != "" {
		cfg.Parse.SwapAxes = true
	}
	if form.Get("vertices") != "" {
		cfg.Export.Vertices = true
	}
	return cfg, nil
}

// convertUpload stores, converts and indexes one uploaded PDF. The
// returned status code describes the failure when err is non-nil.
func (s *Server) convertUpload(ctx context.Context, r io.Reader, name string, cfg types.ConversionConfig) (*types.Manifest, int, error) {
	fetchCfg := s.cfg.Fetch
	fetchCfg.WorkDir = s.workDir()

	doc, err := fetch.Store(r, name, fetchCfg)
	if errors.Is(err, fetch.ErrNotPDF) {
		return nil, http.StatusBadRequest, err
	}
	if err != nil {
		s.logger.Error("storing upload", "name", name, "error", err)
		return nil, http.StatusInternalServerError, err
	}

	start := time.Now()
	m, err := convert.Convert(ctx, s.extractor, *doc, cfg)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	doc.ConversionStatus = types.ConversionFailed
	if err == nil {
		doc.ConversionStatus = m.Status
	}
	s.metrics.conversions.WithLabelValues(string(doc.ConversionStatus)).Inc()
	if serr := fetch.SaveDocument(s.workDir(), doc); serr != nil {
		s.logger.Warn("recording conversion status", "id", doc.ID, "error", serr)
	}

	if err != nil {
		s.logger.Info("conversion failed", "id", doc.ID, "error", err)
		return nil, http.StatusUnprocessableEntity, err
	}
	if err := s.catalog.IngestDocument(ctx, doc.ID); err != nil {
		s.logger.Error("indexing document", "id", doc.ID, "error", err)
		return nil, http.StatusInternalServerError, fmt.Errorf("indexing: %w", err)
	}

	s.logger.Info("converted upload", "id", doc.ID, "status", m.Status,
		"features", m.Features, "source_crs", m.SourceCRS, "elapsed", time.Since(start))
	return m, http.StatusOK, nil
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	id := url.PathEscape(d.ID)
	s.render(w, http.StatusOK, "map.html", mapPage{
		Document:   d,
		Basemaps:   s.basemaps(),
		GeoJSONURL: "/api/documents/" + id + "/features.geojson",
		ArchiveURL: "/api/documents/" + id + "/shapefile.zip",
		PreviewURL: "/api/documents/" + id + "/preview.svg",
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.catalog.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if docs == nil {
		docs = []catalog.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if d, ok := s.document(w, r); ok {
		writeJSON(w, http.StatusOK, d)
	}
}

// document loads the catalog entry named by the {id} URL parameter,
// writing a 404 when it does not exist.
func (s *Server) document(w http.ResponseWriter, r *http.Request) (*catalog.DocumentDetail, bool) {
	d, err := s.catalog.Document(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return d, true
}

// outputPath returns the path of a file named in a document's manifest.
func (s *Server) outputPath(d *catalog.DocumentDetail, name string) string {
	return filepath.Join(convert.OutputDir(s.workDir(), d.ID), filepath.Base(name))
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	s.serveOutput(w, r, s.outputPath(d, d.GeoJSON))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(d.Archive)))
	s.serveOutput(w, r, s.outputPath(d, d.Archive))
}

func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusNotFound, fmt.Errorf("output missing: %s", filepath.Base(path)))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	data, err := os.ReadFile(s.outputPath(d, d.GeoJSON))
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("output missing: %s", d.GeoJSON))
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("reading %s: %w", d.GeoJSON, err))
		return
	}

	q := r.URL.Query()
	opts := preview.Options{
		Width:  sizeParam(q.Get("width")),
		Height: sizeParam(q.Get("height")),
	}
	if s.tiles != nil && q.Get("basemap") != "none" {
		reg := s.tiles.Registry()
		p := reg.Default()
		if name := q.Get("basemap"); name != "" {
			if p, err = reg.Get(name); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		opts.Provider, opts.Attribution, opts.MaxZoom = p.Name, p.Attribution, p.MaxZoom
		if q.Get("embed") != "" {
			opts.Tiles = s.tiles
		} else {
			opts.TileHref = func(z, x, y int) string {
				return fmt.Sprintf("/tiles/%s/%d/%d/%d", url.PathEscape(p.Name), z, x, y)
			}
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := preview.RenderSVG(r.Context(), w, fc, opts); err != nil {
		w.Header().Del("Content-Type")
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

// sizeParam parses a preview dimension, returning 0 (the default) when it
// is missing or out of range.
func sizeParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < minPreviewSize || n > maxPreviewSize {
		return 0
	}
	return n
}

func (s *Server) handleBasemaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.basemaps())
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if s.tiles == nil {
		http.NotFound(w, r)
		return
	}
	provider := chi.URLParam(r, "provider")
	yParam, _, _ := strings.Cut(chi.URLParam(r, "y"), ".")
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(yParam)
	if err := errors.Join(errZ, errX, errY); err != nil {
		writeError(w, http.StatusBadRequest, basemap.ErrInvalidTile)
		return
	}

	tile, err := s.tiles.Fetch(r.Context(), provider, z, x, y)
	if err != nil {
		label := provider
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, basemap.ErrUnknownProvider):
			label, status = "unknown", http.StatusNotFound
		case errors.Is(err, basemap.ErrInvalidTile):
			status = http.StatusBadRequest
		case errors.Is(err, basemap.ErrMissingKey):
			status = http.StatusServiceUnavailable
		default:
			s.logger.Warn("tile fetch failed", "provider", provider, "z", z, "x", x, "y", y, "error", err)
		}
		s.metrics.tiles.WithLabelValues(label, "error").Inc()
		writeError(w, status, err)
		return
	}

	result := "miss"
	if tile.Cached {
		result = "hit"
	}
	s.metrics.tiles.WithLabelValues(provider, result).Inc()

	w.Header().Set("Content-Type", tile.ContentType)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(tileMaxAge.Seconds())))
	w.Header().Set("X-Tile-Cache", strings.ToUpper(result))
	w.Write(tile.Data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
