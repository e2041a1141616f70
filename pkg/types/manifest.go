// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// LayerSummary describes one shapefile written for a document.
type LayerSummary struct {
	Name         string       `json:"name" yaml:"name"`
	GeometryType GeometryKind `json:"geometry_type" yaml:"geometry_type"`
	Path         string       `json:"path" yaml:"path"`
	Features     int          `json:"features" yaml:"features"`

	// Bound is [minX, minY, maxX, maxY] in the output CRS.
	Bound [4]float64 `json:"bound" yaml:"bound,flow"`
}

// Manifest is the YAML record written next to a document's outputs.
type Manifest struct {
	DocumentID  string           `json:"document_id" yaml:"document_id"`
	SourcePDF   string           `json:"source_pdf" yaml:"source_pdf"`
	SourceCRS   string           `json:"source_crs" yaml:"source_crs"`
	OutputCRS   string           `json:"output_crs" yaml:"output_crs"`
	ConvertedAt time.Time        `json:"converted_at" yaml:"converted_at"`
	Status      ConversionStatus `json:"status" yaml:"status"`
	Pages       int              `json:"pages" yaml:"pages"`
	Vertices    int              `json:"vertices" yaml:"vertices"`
	Features    int              `json:"features" yaml:"features"`
	Layers      []LayerSummary   `json:"layers" yaml:"layers"`

	// FeatureNames lists every feature with its kind, used by the catalog.
	FeatureNames []FeatureRecord `json:"feature_names" yaml:"feature_names"`

	// GeoJSON is the path to the WGS 84 feature collection for the map.
	GeoJSON string `json:"geojson" yaml:"geojson"`

	// Archive is the path to the zipped shapefile set.
	Archive string `json:"archive" yaml:"archive"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FeatureRecord is the catalog-facing summary of a single feature.
type FeatureRecord struct {
	Name     string       `json:"name" yaml:"name"`
	Kind     GeometryKind `json:"kind" yaml:"kind"`
	Layer    string       `json:"layer" yaml:"layer"`
	Page     int          `json:"page" yaml:"page"`
	Vertices int          `json:"vertices" yaml:"vertices"`
	AreaM2   float64      `json:"area_m2" yaml:"area_m2"`
	LengthM  float64      `json:"length_m" yaml:"length_m"`
}
