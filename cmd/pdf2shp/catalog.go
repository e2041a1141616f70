// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/catalog"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Index converted documents and search their features",
	Long: `Catalog manages a local SQLite index of converted documents, their
layers and features. Use subcommands to index outputs, list documents,
search feature names, or export the index.`,
}

// --- index subcommand ---

var catalogIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the manifests under <work-dir>/output/",
	Long: `Index reads every conversion manifest, records documents, layers and
features in <work-dir>/index/catalog.db and writes export.yaml.
Unchanged manifests are skipped; documents whose outputs were removed are
dropped from the index.`,
	RunE: runCatalogIndex,
}

func runCatalogIndex(cmd *cobra.Command, args []string) error {
	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d document(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- list subcommand ---

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued documents",
	RunE:  runCatalogList,
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.Documents(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if docs == nil {
			docs = []catalog.DocumentSummary{}
		}
		return writeJSON(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-8s  %8s  %-22s  %-12s  %s\n",
		"Document", "Status", "Features", "Source CRS", "Output CRS", "Converted")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, d := range docs {
		fmt.Fprintf(os.Stdout, "%-24s  %-8s  %8d  %-22s  %-12s  %s\n",
			clip(d.ID, 24), d.Status, d.Features, clip(d.SourceCRS, 22), d.OutputCRS,
			d.ConvertedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stdout, "\n%d documents\n", len(docs))
	return nil
}

// --- search subcommand ---

var catalogSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search feature names",
	Long: `Search matches feature names with FTS5 full-text search; every word
of the query must appear, as a whole word or a prefix. Results can be
filtered by geometry kind and document.`,
	RunE: runCatalogSearch,
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --kind, or --document")
	}

	results, err := store.Search(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if results == nil {
			results = []catalog.FeatureResult{}
		}
		return writeJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-36s  %-10s  %-24s  %4s  %s\n",
		"Rank", "Feature", "Kind", "Document", "Page", "Size")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, r := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %-36s  %-10s  %-24s  %4d  %s\n",
			i+1, clip(r.Name, 36), r.Kind, clip(r.DocumentID, 24), r.Page, measure(r.FeatureRecord))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to YAML or JSON",
	Long: `Export writes every catalogued feature (or a filtered subset) to
<work-dir>/index/export.yaml or export.json.`,
	RunE: runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := store.Export(cmd.Context(), catalog.Format(format), queryOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

// --- shared helpers ---

func openCatalog(cmd *cobra.Command) (*catalog.Store, error) {
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return nil, err
	}
	return catalog.NewStore(cfg.Catalog)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) catalog.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	kind, _ := cmd.Flags().GetString("kind")
	documentID, _ := cmd.Flags().GetString("document")
	limit, _ := cmd.Flags().GetInt("limit")

	return catalog.QueryOptions{
		Query:      queryText,
		Kind:       types.GeometryKind(kind),
		DocumentID: documentID,
		MaxResults: limit,
	}
}

func measure(f types.FeatureRecord) string {
	switch {
	case f.AreaM2 > 0:
		return fmt.Sprintf("%.1f m²", f.AreaM2)
	case f.LengthM > 0:
		return fmt.Sprintf("%.1f m", f.LengthM)
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	catalogCmd.PersistentFlags().Int("max-results", 0, "default maximum number of search results (default 20)")

	catalogListCmd.Flags().Bool("json", false, "output documents as JSON")

	// Search flags.
	catalogSearchCmd.Flags().String("query", "", "full-text search query")
	catalogSearchCmd.Flags().String("kind", "", "filter by geometry kind: point, linestring, polygon")
	catalogSearchCmd.Flags().String("document", "", "filter by document ID")
	catalogSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	catalogSearchCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	catalogExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	catalogExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	catalogExportCmd.Flags().String("kind", "", "filter by geometry kind for partial export")
	catalogExportCmd.Flags().String("document", "", "filter by document ID for partial export")
	catalogExportCmd.Flags().Int("limit", 0, "maximum features to export (0 = all)")

	catalogCmd.AddCommand(catalogIndexCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	rootCmd.AddCommand(catalogCmd)
}
