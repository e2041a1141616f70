// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [paths or URLs...]",
	Short: "Copy or download PDFs into the work directory",
	Long: `Fetch resolves each input (a local PDF path or an http(s) URL) to a PDF
under <work-dir>/raw/ and records a metadata sidecar under
<work-dir>/metadata/. Documents already fetched are skipped.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	fetchCmd.Flags().Duration("delay", 0, "delay between consecutive downloads (default 1s)")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PDF paths or URLs")
	}

	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}

	result := fetch.FetchBatch(cmd.Context(), httpClient(cfg.Fetch.HTTPConfig), args, cfg.Fetch, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d document(s) failed to fetch", result.Failed)
	}
	return nil
}
