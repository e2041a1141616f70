// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pdf2shp/0.1"). Tile servers reject requests without one.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// FetchConfig holds settings for the fetch stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// DownloadDelay is the delay between consecutive downloads (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`

	// WorkDir is the base directory (contains raw/, metadata/, output/, index/, tiles/).
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// ExtractBackend identifies the PDF text extraction tool.
type ExtractBackend string

const (
	BackendNative    ExtractBackend = "native"
	BackendPdftotext ExtractBackend = "pdftotext"
)

// ExtractConfig holds settings for the text extraction stage.
type ExtractConfig struct {
	// Backend selects the extraction tool: native or pdftotext.
	Backend ExtractBackend `json:"backend" yaml:"backend"`
}

// ParseConfig holds settings for coordinate parsing.
type ParseConfig struct {
	// SourceCRS forces the input CRS (e.g. "EPSG:32633"). Empty means detect
	// from the document text, falling back to WGS 84 for degree values.
	SourceCRS string `json:"source_crs" yaml:"source_crs"`

	// SwapAxes flips the two coordinate columns of every numeric row.
	SwapAxes bool `json:"swap_axes" yaml:"swap_axes"`

	// Geometry forces the kind of every feature: auto, point, linestring, polygon.
	Geometry GeometryKind `json:"geometry" yaml:"geometry"`
}

// ExportConfig holds settings for writing outputs.
type ExportConfig struct {
	// OutputCRS is the CRS the shapefiles are written in (default EPSG:4326).
	OutputCRS string `json:"output_crs" yaml:"output_crs"`

	// Vertices also writes every parsed vertex as a point layer.
	Vertices bool `json:"vertices" yaml:"vertices"`

	// Force reconverts documents whose manifest already exists.
	Force bool `json:"force" yaml:"force"`
}

// ConversionConfig groups the settings of a single conversion run.
type ConversionConfig struct {
	Extract ExtractConfig `json:"extract" yaml:"extract"`
	Parse   ParseConfig   `json:"parse" yaml:"parse"`
	Export  ExportConfig  `json:"export" yaml:"export"`

	// WorkDir is the base directory (contains raw/, output/).
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// CatalogConfig holds settings for the SQLite catalog.
type CatalogConfig struct {
	// WorkDir is the base directory (contains output/, index/).
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// BasemapConfig holds settings for basemap tiles.
type BasemapConfig struct {
	HTTPConfig `yaml:",inline"`

	// Default is the provider shown first on the map.
	Default string `json:"default" yaml:"default"`

	// CacheDir stores fetched tiles (default <workdir>/tiles).
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// Providers adds or overrides entries in the built-in registry.
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
}

// ProviderConfig declares an XYZ tile provider.
type ProviderConfig struct {
	Name        string   `json:"name" yaml:"name" mapstructure:"name"`
	URL         string   `json:"url" yaml:"url" mapstructure:"url"`
	Attribution string   `json:"attribution" yaml:"attribution" mapstructure:"attribution"`
	MaxZoom     int      `json:"max_zoom" yaml:"max_zoom" mapstructure:"max_zoom"`
	Subdomains  []string `json:"subdomains" yaml:"subdomains" mapstructure:"subdomains"`
	KeySecret   string   `json:"key_secret" yaml:"key_secret" mapstructure:"key_secret"`
}

// ServerConfig holds settings for the web map server.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`

	// MaxConcurrent bounds simultaneous conversions (default 2).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// MaxUploadMB bounds the size of uploaded PDFs (default 50).
	MaxUploadMB int `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion"`
	Catalog    CatalogConfig    `json:"catalog" yaml:"catalog"`
	Basemap    BasemapConfig    `json:"basemap" yaml:"basemap"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}
