// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf2shp/internal/basemap"
	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/internal/extract"
	"github.com/pdiddy/pdf2shp/internal/testutil"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var surveyPage = []string{
	"Datum: WGS 84",
	"Boundary of Lot 7",
	"1  40.4461, -79.9822",
	"2  40.4461, -79.9810",
	"3  40.4470, -79.9810",
	"4  40.4470, -79.9822",
}

type testEnv struct {
	srv       *Server
	handler   http.Handler
	workDir   string
	tileCalls *atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	workDir := t.TempDir()

	calls := &atomic.Int32{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	t.Cleanup(upstream.Close)

	pipeline := types.PipelineConfig{
		Fetch:      types.FetchConfig{WorkDir: workDir},
		Conversion: types.ConversionConfig{WorkDir: workDir},
		Catalog:    types.CatalogConfig{WorkDir: workDir},
		Basemap: types.BasemapConfig{
			Default: "Test.Tiles",
			Providers: []types.ProviderConfig{{
				Name:        "Test.Tiles",
				URL:         upstream.URL + "/{z}/{x}/{y}.png",
				Attribution: "Test tiles",
				MaxZoom:     19,
			}},
		},
		Server: types.ServerConfig{MaxUploadMB: 1},
	}

	store, err := catalog.NewStore(pipeline.Catalog)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg, err := basemap.NewRegistry(pipeline.Basemap, nil)
	require.NoError(t, err)
	tiles := basemap.NewTileCache(reg, upstream.Client(), pipeline.Basemap, workDir)

	ex, err := extract.New(types.BackendNative, nil)
	require.NoError(t, err)

	srv := NewServer(Config{Pipeline: pipeline, Catalog: store, Tiles: tiles, Extractor: ex})
	return &testEnv{srv: srv, handler: srv.Handler(), workDir: workDir, tileCalls: calls}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (e *testEnv) upload(t *testing.T, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("pdf", filename)
		require.NoError(t, err)
		fw.Write(content)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestConvertUpload_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "Boundary Survey.pdf", testutil.MinimalPDF([][]string{surveyPage}), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/maps/boundary-survey", rec.Header().Get("Location"))

	rec = env.get(t, "/api/documents")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []catalog.DocumentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "boundary-survey", docs[0].ID)
	assert.Equal(t, types.ConversionDone, docs[0].Status)
	assert.Equal(t, 1, docs[0].Features)

	rec = env.get(t, "/api/documents/boundary-survey")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail catalog.DocumentDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.FeatureList, 1)
	assert.Equal(t, "Boundary of Lot 7", detail.FeatureList[0].Name)
	assert.Equal(t, types.KindPolygon, detail.FeatureList[0].Kind)

	rec = env.get(t, "/api/documents/boundary-survey/features.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.GeoJSONType())

	rec = env.get(t, "/api/documents/boundary-survey/shapefile.zip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "boundary-survey_shp.zip")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = env.get(t, "/maps/boundary-survey")
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "Boundary of Lot 7")
	assert.Contains(t, page, "leaflet")
	assert.Contains(t, page, "Control.FullScreen.js")
	assert.Contains(t, page, `/tiles/Test.Tiles/{z}/{x}/{y}`)

	rec = env.get(t, "/api/documents/boundary-survey/preview.svg?width=300&height=200")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `width="300" height="200"`)
	assert.Contains(t, rec.Body.String(), "/tiles/Test.Tiles/")
	assert.EqualValues(t, 0, env.tileCalls.Load())

	rec = env.get(t, "/api/documents/boundary-survey/preview.svg?embed=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data:image/png;base64,")
	assert.Positive(t, env.tileCalls.Load())

	rec = env.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/maps/boundary-survey"`)

	rec = env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdf2shp_conversions_total{status="done"} 1`)
	assert.Contains(t, rec.Body.String(), "pdf2shp_conversion_duration_seconds_count 1")
}

func TestConvertUpload_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		fields   map[string]string
		want     int
		message  string
	}{
		{"missing file", "", nil, nil, http.StatusBadRequest, "Choose a PDF file"},
		{"not a pdf", "notes.pdf", []byte("just text"), nil, http.StatusBadRequest, "not a PDF"},
		{"no coordinates", "memo.pdf", testutil.MinimalPDF([][]string{{"Meeting notes"}}), nil, http.StatusUnprocessableEntity, "no coordinates"},
		{"bad geometry", "plan.pdf", testutil.MinimalPDF([][]string{surveyPage}), map[string]string{"geometry": "circle"}, http.StatusBadRequest, "unknown geometry"},
		{"bad source crs", "plan.pdf", testutil.MinimalPDF([][]string{surveyPage}), map[string]string{"source_crs": "EPSG:2154"}, http.StatusUnprocessableEntity, "source CRS"},
		{"too large", "big.pdf", append([]byte("%PDF-1.4\n"), make([]byte, 2<<20)...), nil, http.StatusRequestEntityTooLarge, "larger than 1 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.upload(t, tt.filename, tt.content, tt.fields)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}

	rec := env.get(t, "/metrics")
	assert.Contains(t, rec.Body.String(), `pdf2shp_conversions_total{status="failed"} 2`)
}

func TestConvertUpload_FormOptions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "lot.pdf", testutil.MinimalPDF([][]string{surveyPage}),
		map[string]string{"geometry": "point", "output_crs": "utm", "vertices": "1"})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	rec = env.get(t, "/api/documents/lot")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail catalog.DocumentDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "EPSG:32617", detail.OutputCRS)
	assert.Len(t, detail.FeatureList, 4)
	for _, f := range detail.FeatureList {
		assert.Equal(t, types.KindPoint, f.Kind)
	}
}

func TestConversionConfig(t *testing.T) {
	env := newTestEnv(t)

	cfg, err := env.srv.conversionConfig(url.Values{
		"source_crs": {" EPSG:32633 "},
		"swap_axes":  {"1"},
		"geometry":   {"linestring"},
	})
	require.NoError(t, err)
	assert.True(t, cfg.Export.Force)
	assert.Equal(t, "EPSG:32633", cfg.Parse.SourceCRS)
	assert.True(t, cfg.Parse.SwapAxes)
	assert.False(t, cfg.Export.Vertices)
	assert.Equal(t, types.KindLineString, cfg.Parse.Geometry)
	assert.Equal(t, env.workDir, cfg.WorkDir)

	_, err = env.srv.conversionConfig(url.Values{"geometry": {"hexagon"}})
	assert.Error(t, err)
}

func TestClaim(t *testing.T) {
	env := newTestEnv(t)
	assert.True(t, env.srv.claim("plan"))
	assert.False(t, env.srv.claim("plan"))
	assert.True(t, env.srv.claim("other"))
	env.srv.release("plan")
	assert.True(t, env.srv.claim("plan"))
}

func TestDocument_NotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{
		"/maps/nope",
		"/api/documents/nope",
		"/api/documents/nope/features.geojson",
		"/api/documents/nope/shapefile.zip",
		"/api/documents/nope/preview.svg",
	} {
		assert.Equal(t, http.StatusNotFound, env.get(t, path).Code, path)
	}

	rec := env.get(t, "/api/documents")
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestTiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/tiles/Test.Tiles/3/4/2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Tile-Cache"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, pngHeader, rec.Body.Bytes())

	rec = env.get(t, "/tiles/Test.Tiles/3/4/2.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Tile-Cache"))
	assert.EqualValues(t, 1, env.tileCalls.Load())

	tests := []struct {
		path string
		want int
	}{
		{"/tiles/Nope/1/0/0", http.StatusNotFound},
		{"/tiles/Test.Tiles/2/9/0", http.StatusBadRequest},
		{"/tiles/Test.Tiles/20/0/0", http.StatusBadRequest},
		{"/tiles/Test.Tiles/a/0/0", http.StatusBadRequest},
		{"/tiles/Thunderforest.Landscape/1/0/0", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, env.get(t, tt.path).Code)
		})
	}

	metrics := env.get(t, "/metrics").Body.String()
	assert.Contains(t, metrics, `pdf2shp_tile_requests_total{provider="Test.Tiles",result="hit"} 1`)
	assert.Contains(t, metrics, `pdf2shp_tile_requests_total{provider="Test.Tiles",result="miss"} 1`)
	assert.Contains(t, metrics, `pdf2shp_tile_requests_total{provider="unknown",result="error"} 1`)
}

func TestBasemaps(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/basemaps")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []basemapView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.NotEmpty(t, views)
	assert.Equal(t, "Test.Tiles", views[0].Name)
	assert.True(t, views[0].Default)
	assert.Equal(t, "/tiles/Test.Tiles/{z}/{x}/{y}", views[0].TileURL)
	for _, v := range views[1:] {
		assert.False(t, v.Default)
		assert.NotEqual(t, "Thunderforest.Landscape", v.Name)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "client-id")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", rec.Header().Get("X-Request-Id"))
}

func TestServe_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
