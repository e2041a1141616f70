// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// CoordinateFormat records how a vertex was written in the source text.
type CoordinateFormat string

const (
	// FormatProjected is an easting/northing pair in metres.
	FormatProjected CoordinateFormat = "projected"
	// FormatDecimal is a decimal-degree latitude/longitude pair.
	FormatDecimal CoordinateFormat = "decimal"
	// FormatDMS is a degrees-minutes-seconds pair with hemisphere letters.
	FormatDMS CoordinateFormat = "dms"
)

// GeometryKind is the shape a feature group is built into.
type GeometryKind string

const (
	KindAuto       GeometryKind = "auto"
	KindPoint      GeometryKind = "point"
	KindLineString GeometryKind = "linestring"
	KindPolygon    GeometryKind = "polygon"
)

// Valid reports whether k is empty or one of the known kinds.
func (k GeometryKind) Valid() bool {
	switch k {
	case "", KindAuto, KindPoint, KindLineString, KindPolygon:
		return true
	}
	return false
}

// Vertex is one coordinate row found in a PDF. X is the easting or
// longitude and Y the northing or latitude, whatever order the source used.
type Vertex struct {
	Label  string           `json:"label,omitempty" yaml:"label,omitempty"`
	X      float64          `json:"x" yaml:"x"`
	Y      float64          `json:"y" yaml:"y"`
	Z      float64          `json:"z,omitempty" yaml:"z,omitempty"`
	HasZ   bool             `json:"has_z,omitempty" yaml:"has_z,omitempty"`
	Page   int              `json:"page" yaml:"page"`
	Line   int              `json:"line" yaml:"line"`
	Format CoordinateFormat `json:"format" yaml:"format"`
}

// FeatureGroup is a run of vertices that belong to one named feature,
// usually introduced by a heading such as "Parcel 12" or "Line A".
type FeatureGroup struct {
	Name     string   `json:"name" yaml:"name"`
	Heading  string   `json:"heading,omitempty" yaml:"heading,omitempty"`
	Page     int      `json:"page" yaml:"page"`
	Vertices []Vertex `json:"vertices" yaml:"vertices"`
}
