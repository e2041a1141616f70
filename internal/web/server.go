// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package web serves the map UI, the document API and the basemap tile
// proxy.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/pdf2shp/internal/basemap"
	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/internal/extract"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	defaultAddr          = ":8080"
	defaultMaxConcurrent = 2
	defaultMaxUploadMB   = 50

	shutdownTimeout = 5 * time.Second
)

// Config holds the dependencies of the web server.
type Config struct {
	Pipeline  types.PipelineConfig
	Catalog   *catalog.Store
	Tiles     *basemap.TileCache
	Extractor extract.Extractor
	Logger    *slog.Logger
}

// Server is the web map server.
type Server struct {
	cfg       types.PipelineConfig
	catalog   *catalog.Store
	tiles     *basemap.TileCache
	extractor extract.Extractor
	logger    *slog.Logger
	metrics   *metrics

	sem        *semaphore.Weighted
	maxUpload  int64
	mu         sync.Mutex
	inProgress map[string]bool
}

// NewServer creates a server. Missing server settings take their defaults.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sc := cfg.Pipeline.Server
	if sc.Addr == "" {
		sc.Addr = defaultAddr
	}
	if sc.MaxConcurrent <= 0 {
		sc.MaxConcurrent = defaultMaxConcurrent
	}
	if sc.MaxUploadMB <= 0 {
		sc.MaxUploadMB = defaultMaxUploadMB
	}
	cfg.Pipeline.Server = sc

	return &Server{
		cfg:        cfg.Pipeline,
		catalog:    cfg.Catalog,
		tiles:      cfg.Tiles,
		extractor:  cfg.Extractor,
		logger:     logger,
		metrics:    newMetrics(),
		sem:        semaphore.NewWeighted(int64(sc.MaxConcurrent)),
		maxUpload:  int64(sc.MaxUploadMB) << 20,
		inProgress: make(map[string]bool),
	}
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		requestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleIndex)
	r.Post("/convert", s.handleConvert)
	r.Get("/maps/{id}", s.handleMap)

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.handleDocuments)
		r.Get("/documents/{id}", s.handleDocument)
		r.Get("/documents/{id}/features.geojson", s.handleGeoJSON)
		r.Get("/documents/{id}/shapefile.zip", s.handleArchive)
		r.Get("/documents/{id}/preview.svg", s.handlePreview)
		r.Get("/basemaps", s.handleBasemaps)
	})

	r.Get("/tiles/{provider}/{z}/{x}/{y}", s.handleTile)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Server.Addr
	s.logger.Info("starting map server", "addr", addr, "work_dir", s.cfg.Conversion.WorkDir)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down map server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestID tags every request with a UUID, echoed in X-Request-Id and
// printed by the request logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claim marks id as being converted. It reports false when another
// request already holds it.
func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress[id] {
		return false
	}
	s.inProgress[id] = true
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, id)
}
