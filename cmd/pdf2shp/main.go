// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pdf2shp CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf2shp/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

const secretsDir = ".secrets"

// loadedSecrets holds tile provider keys read from secretsDir at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the pdf2shp CLI.
var rootCmd = &cobra.Command{
	Use:   "pdf2shp",
	Short: "Extract coordinates from PDFs into shapefiles and web maps",
	Long: `pdf2shp reads coordinate listings from PDF documents (survey plans,
permits, parcel descriptions), builds point, line and polygon features,
and writes them as ESRI shapefiles, GeoJSON and a vertex table.

Each stage is a subcommand: fetch downloads or copies PDFs into the work
directory, convert writes the outputs, catalog indexes them for search,
and serve shows them on an interactive web map.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSecrets,
}

// loadSecrets reads tile provider keys before any subcommand runs. Only key
// names are reported, never values.
func loadSecrets(cmd *cobra.Command, _ []string) error {
	keys, err := secrets.Load(secretsDir)
	if err != nil {
		return err
	}
	loadedSecrets = keys
	if len(keys) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Loaded secrets: %v\n", slices.Sorted(maps.Keys(keys)))
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pdf2shp.yaml or ~/.config/pdf2shp/pdf2shp.yaml)")
	rootCmd.PersistentFlags().String("work-dir", "", "base directory for raw/, metadata/, output/, index/ and tiles/ (default \"data\")")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (default \"info\")")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pdf2shp")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pdf2shp"))
		}
	}

	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("PDF2SHP")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger returns a text logger on stderr at the configured level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(stringSetting(cmd, "log-level", keyLogLevel))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
