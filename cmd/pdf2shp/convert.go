// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/internal/convert"
	"github.com/pdiddy/pdf2shp/internal/extract"
	"github.com/pdiddy/pdf2shp/internal/fetch"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [documents or PDF paths...]",
	Short: "Extract coordinates and write shapefiles, GeoJSON and a vertex table",
	Long: `Convert reads the text of each PDF, finds coordinate rows and feature
headings, and writes one shapefile per geometry type together with a
GeoJSON file, a vertex CSV and a zip of the layers under
<work-dir>/output/<id>/.

Arguments are fetched document IDs or paths to PDF files. With no
arguments every fetched document is converted. Documents that already
have outputs are skipped unless --force is set. The catalog is updated
afterwards unless --no-index is set.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("backend", "", "text extraction backend: native or pdftotext (default \"native\")")
	convertCmd.Flags().String("source-crs", "", "CRS of projected coordinates, e.g. EPSG:32633 or \"UTM 33N\" (default: detect)")
	convertCmd.Flags().Bool("swap-axes", false, "swap the two coordinate columns of every row")
	convertCmd.Flags().String("geometry", "", "feature geometry: auto, point, linestring or polygon (default \"auto\")")
	convertCmd.Flags().String("output-crs", "", "CRS of the shapefiles: EPSG code, name, or utm for the local zone (default EPSG:4326)")
	convertCmd.Flags().Bool("vertices", false, "also write every vertex as a point layer")
	convertCmd.Flags().Bool("force", false, "reconvert documents that already have outputs")
	convertCmd.Flags().Bool("no-index", false, "do not update the catalog after converting")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}

	ex, err := extract.New(cfg.Conversion.Extract.Backend, nil)
	if err != nil {
		return err
	}

	docs, err := resolveDocuments(cfg.Conversion.WorkDir, args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents to convert. Run fetch first or pass PDF paths.")
		return nil
	}

	result := convert.ConvertBatch(cmd.Context(), ex, docs, cfg.Conversion, os.Stdout)

	if noIndex, _ := cmd.Flags().GetBool("no-index"); !noIndex && result.Converted+result.Partial > 0 {
		store, err := catalog.NewStore(cfg.Catalog)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Println()
		if _, err := store.Ingest(cmd.Context(), os.Stdout); err != nil {
			return err
		}
	}

	if result.HasFailures() {
		return fmt.Errorf("%d document(s) failed conversion", result.Failed)
	}
	return nil
}

// resolveDocuments maps arguments to documents. An argument naming an
// existing file is a PDF path; anything else is a fetched document ID.
func resolveDocuments(workDir string, args []string) ([]types.Document, error) {
	if len(args) == 0 {
		return convert.FetchedDocuments(workDir)
	}

	docs := make([]types.Document, 0, len(args))
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
			docs = append(docs, types.Document{
				ID:      fetch.SlugName(arg),
				PDFPath: arg,
				Title:   strings.TrimSuffix(info.Name(), ".pdf"),
			})
			continue
		}
		d, err := fetch.LoadDocument(workDir, arg)
		if err != nil {
			return nil, fmt.Errorf("%s is neither a PDF file nor a fetched document: %w", arg, err)
		}
		if d.PDFPath == "" {
			d.PDFPath = fetch.RawPath(workDir, d.ID)
		}
		docs = append(docs, *d)
	}
	return docs, nil
}
