// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf2shp/pkg/types"
)

// Configuration keys. Nested keys map to sections of pdf2shp.yaml and to
// PDF2SHP_<SECTION>_<KEY> environment variables.
const (
	keyWorkDir  = "work_dir"
	keyLogLevel = "log_level"

	keyTimeout    = "http.timeout"
	keyUserAgent  = "http.user_agent"
	keyMaxRetries = "http.max_retries"

	keyDownloadDelay = "fetch.download_delay"

	keyBackend = "extract.backend"

	keySourceCRS = "parse.source_crs"
	keySwapAxes  = "parse.swap_axes"
	keyGeometry  = "parse.geometry"

	keyOutputCRS = "export.output_crs"
	keyVertices  = "export.vertices"

	keyMaxResults = "catalog.max_results"

	keyBasemapDefault   = "basemap.default"
	keyBasemapCacheDir  = "basemap.cache_dir"
	keyBasemapProviders = "basemap.providers"

	keyAddr          = "server.addr"
	keyMaxConcurrent = "server.max_concurrent"
	keyMaxUploadMB   = "server.max_upload_mb"
)

const (
	defaultWorkDir   = "data"
	defaultTimeout   = 60 * time.Second
	defaultDelay     = 1 * time.Second
	defaultUserAgent = "pdf2shp/0.1"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyWorkDir, defaultWorkDir)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyTimeout, defaultTimeout)
	v.SetDefault(keyUserAgent, defaultUserAgent)
	v.SetDefault(keyMaxRetries, 5)
	v.SetDefault(keyDownloadDelay, defaultDelay)
	v.SetDefault(keyBackend, string(types.BackendNative))
	v.SetDefault(keyGeometry, string(types.KindAuto))
	v.SetDefault(keyMaxResults, 20)
	v.SetDefault(keyAddr, ":8080")
	v.SetDefault(keyMaxConcurrent, 2)
	v.SetDefault(keyMaxUploadMB, 50)
}

// Settings resolve a flag when the user set it on the command line, and
// the config key otherwise.

func stringSetting(cmd *cobra.Command, flag, key string) string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString(key)
}

func boolSetting(cmd *cobra.Command, flag, key string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool(flag)
		return v
	}
	return viper.GetBool(key)
}

func intSetting(cmd *cobra.Command, flag, key string) int {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt(flag)
		return v
	}
	return viper.GetInt(key)
}

func durationSetting(cmd *cobra.Command, flag, key string) time.Duration {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetDuration(flag)
		return v
	}
	return viper.GetDuration(key)
}

// pipelineConfig assembles every stage's configuration for cmd.
func pipelineConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	workDir := stringSetting(cmd, "work-dir", keyWorkDir)
	httpCfg := types.HTTPConfig{
		Timeout:    durationSetting(cmd, "timeout", keyTimeout),
		UserAgent:  viper.GetString(keyUserAgent),
		MaxRetries: viper.GetInt(keyMaxRetries),
	}

	cfg := types.PipelineConfig{
		Fetch: types.FetchConfig{
			HTTPConfig:    httpCfg,
			DownloadDelay: durationSetting(cmd, "delay", keyDownloadDelay),
			WorkDir:       workDir,
		},
		Conversion: types.ConversionConfig{
			Extract: types.ExtractConfig{
				Backend: types.ExtractBackend(stringSetting(cmd, "backend", keyBackend)),
			},
			Parse: types.ParseConfig{
				SourceCRS: stringSetting(cmd, "source-crs", keySourceCRS),
				SwapAxes:  boolSetting(cmd, "swap-axes", keySwapAxes),
				Geometry:  types.GeometryKind(stringSetting(cmd, "geometry", keyGeometry)),
			},
			Export: types.ExportConfig{
				OutputCRS: stringSetting(cmd, "output-crs", keyOutputCRS),
				Vertices:  boolSetting(cmd, "vertices", keyVertices),
				Force:     boolSetting(cmd, "force", ""),
			},
			WorkDir: workDir,
		},
		Catalog: types.CatalogConfig{
			WorkDir:    workDir,
			MaxResults: intSetting(cmd, "max-results", keyMaxResults),
		},
		Basemap: types.BasemapConfig{
			HTTPConfig: httpCfg,
			Default:    stringSetting(cmd, "basemap", keyBasemapDefault),
			CacheDir:   viper.GetString(keyBasemapCacheDir),
		},
		Server: types.ServerConfig{
			Addr:          stringSetting(cmd, "addr", keyAddr),
			MaxConcurrent: intSetting(cmd, "max-concurrent", keyMaxConcurrent),
			MaxUploadMB:   intSetting(cmd, "max-upload-mb", keyMaxUploadMB),
		},
	}

	if err := viper.UnmarshalKey(keyBasemapProviders, &cfg.Basemap.Providers); err != nil {
		return cfg, fmt.Errorf("reading basemap providers: %w", err)
	}
	if !cfg.Conversion.Parse.Geometry.Valid() {
		return cfg, fmt.Errorf("unknown geometry %q: use auto, point, linestring or polygon", cfg.Conversion.Parse.Geometry)
	}
	return cfg, nil
}

func httpClient(cfg types.HTTPConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}
