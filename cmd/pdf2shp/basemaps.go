// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pdf2shp/internal/basemap"
)

var basemapsCmd = &cobra.Command{
	Use:   "basemaps",
	Short: "List the basemap tile providers",
	Long: `Basemaps lists the built-in tile providers merged with those declared
under basemap.providers in pdf2shp.yaml. Providers that need an API key
are only listed when the key is available in .secrets/ or the
environment.`,
	RunE: runBasemaps,
}

func init() {
	basemapsCmd.Flags().Bool("json", false, "output providers as JSON")
	basemapsCmd.Flags().Bool("urls", false, "show Leaflet URL templates (API keys included)")

	rootCmd.AddCommand(basemapsCmd)
}

func runBasemaps(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := basemap.NewRegistry(cfg.Basemap, loadedSecrets)
	if err != nil {
		return err
	}
	providers := reg.Providers()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(providers)
	}

	showURLs, _ := cmd.Flags().GetBool("urls")
	def := reg.Default().Name
	fmt.Fprintf(os.Stdout, "%-2s%-26s  %7s  %s\n", "", "Provider", "MaxZoom", "Attribution")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, p := range providers {
		mark := ""
		if p.Name == def {
			mark = "*"
		}
		fmt.Fprintf(os.Stdout, "%-2s%-26s  %7d  %s\n", mark, p.Name, p.MaxZoom, clip(p.Attribution, 60))
		if showURLs {
			u, err := reg.LeafletURL(p.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "  %s\n", u)
		}
	}
	fmt.Fprintf(os.Stdout, "\n%d providers (* default)\n", len(providers))
	return nil
}
