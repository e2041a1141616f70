// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/basemap"
	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/internal/extract"
	"github.com/pdiddy/pdf2shp/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web map, upload form and document API",
	Long: `Serve starts an HTTP server with an upload form that converts PDFs on
the fly, a Leaflet map per converted document with a basemap picker and
fullscreen control, GeoJSON, shapefile and SVG downloads, a caching
proxy for basemap tiles and Prometheus metrics on /metrics.

The catalog is brought up to date with <work-dir>/output/ on start.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default \":8080\")")
	serveCmd.Flags().String("backend", "", "text extraction backend for uploads: native or pdftotext")
	serveCmd.Flags().String("basemap", "", "default basemap provider (default \"OpenStreetMap.Mapnik\")")
	serveCmd.Flags().Int("max-concurrent", 0, "maximum simultaneous conversions (default 2)")
	serveCmd.Flags().Int("max-upload-mb", 0, "maximum upload size in MB (default 50)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}

	ex, err := extract.New(cfg.Conversion.Extract.Backend, nil)
	if err != nil {
		return err
	}

	reg, err := basemap.NewRegistry(cfg.Basemap, loadedSecrets)
	if err != nil {
		return err
	}
	tiles := basemap.NewTileCache(reg, httpClient(cfg.Basemap.HTTPConfig), cfg.Basemap, cfg.Conversion.WorkDir)

	store, err := catalog.NewStore(cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), io.Discard)
	if err != nil {
		return err
	}
	logger.Info("catalog ready", "indexed", summary.Indexed, "updated", summary.Updated,
		"skipped", summary.Skipped, "removed", summary.Removed, "failed", summary.Failed)

	srv := web.NewServer(web.Config{
		Pipeline:  cfg,
		Catalog:   store,
		Tiles:     tiles,
		Extractor: ex,
		Logger:    logger,
	})
	return srv.Serve(cmd.Context())
}
