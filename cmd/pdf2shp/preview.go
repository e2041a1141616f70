// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/basemap"
	"github.com/pdiddy/pdf2shp/internal/convert"
	"github.com/pdiddy/pdf2shp/internal/preview"
)

var previewCmd = &cobra.Command{
	Use:   "preview <document>",
	Short: "Render a converted document as an SVG map",
	Long: `Preview draws the features of a converted document over basemap tiles
and writes a standalone SVG with the tiles embedded. Tiles come from the
tile cache under <work-dir>/tiles/ and are downloaded when missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringP("output", "o", "", "output file (default <work-dir>/output/<id>/<id>.svg)")
	previewCmd.Flags().String("basemap", "", "basemap provider (default \"OpenStreetMap.Mapnik\")")
	previewCmd.Flags().Bool("no-basemap", false, "draw features only")
	previewCmd.Flags().Int("width", 800, "image width in pixels")
	previewCmd.Flags().Int("height", 600, "image height in pixels")

	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}
	id := args[0]
	workDir := cfg.Conversion.WorkDir

	m, err := convert.LoadManifest(workDir, id)
	if err != nil {
		return fmt.Errorf("%s has not been converted: %w", id, err)
	}
	data, err := os.ReadFile(filepath.Join(convert.OutputDir(workDir, id), m.GeoJSON))
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("reading %s: %w", m.GeoJSON, err)
	}

	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	opts := preview.Options{Width: width, Height: height}

	if noBasemap, _ := cmd.Flags().GetBool("no-basemap"); !noBasemap {
		reg, err := basemap.NewRegistry(cfg.Basemap, loadedSecrets)
		if err != nil {
			return err
		}
		p := reg.Default()
		opts.Provider, opts.Attribution, opts.MaxZoom = p.Name, p.Attribution, p.MaxZoom
		opts.Tiles = basemap.NewTileCache(reg, httpClient(cfg.Basemap.HTTPConfig), cfg.Basemap, workDir)
	}

	var buf bytes.Buffer
	if err := preview.RenderSVG(cmd.Context(), &buf, fc, opts); err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = filepath.Join(convert.OutputDir(workDir, id), id+".svg")
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Println("Wrote", out)
	return nil
}
