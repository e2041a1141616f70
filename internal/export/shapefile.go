// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes converted features to ESRI shapefiles, a vertex
// table, GeoJSON and a zip archive.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/pdiddy/pdf2shp/internal/crs"
	"github.com/pdiddy/pdf2shp/internal/geometry"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

// maxText is the dBASE character field width.
const maxText = 254

// layerFields are the attribute columns of every layer. dBASE field
// names are at most 10 characters.
var layerFields = []shp.Field{
	shp.StringField("NAME", 80),
	shp.StringField("KIND", 12),
	shp.NumberField("VERTICES", 8),
	shp.NumberField("PAGE", 6),
	shp.FloatField("AREA_M2", 18, 2),
	shp.FloatField("LENGTH_M", 18, 2),
	shp.StringField("SOURCE", maxText),
}

var fieldNames = []string{"NAME", "KIND", "VERTICES", "PAGE", "AREA_M2", "LENGTH_M", "SOURCE"}

// layerKinds fixes the order layers are written in.
var layerKinds = []struct {
	kind   types.GeometryKind
	suffix string
	shape  shp.ShapeType
}{
	{types.KindPolygon, "polygons", shp.POLYGON},
	{types.KindLineString, "lines", shp.POLYLINE},
	{types.KindPoint, "points", shp.POINT},
}

// LayerExtensions are the files that make up one written layer.
var LayerExtensions = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// WriteShapefiles writes one shapefile per geometry kind present in
// features, named <stem>_polygons, <stem>_lines and <stem>_points. The
// features must already be in c. source is recorded in the SOURCE column.
func WriteShapefiles(dir, stem string, features []geometry.Feature, c crs.CRS, source string) ([]types.LayerSummary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	var layers []types.LayerSummary
	for _, lk := range layerKinds {
		var subset []geometry.Feature
		for _, f := range features {
			if f.Kind == lk.kind {
				subset = append(subset, f)
			}
		}
		if len(subset) == 0 {
			continue
		}
		path := filepath.Join(dir, stem+"_"+lk.suffix+".shp")
		if err := writeLayer(path, lk.shape, subset, source); err != nil {
			return nil, err
		}
		if err := writeSidecars(path, c); err != nil {
			return nil, err
		}
		layers = append(layers, summary(stem+"_"+lk.suffix, lk.kind, path, subset))
	}
	return layers, nil
}

// WriteVertexLayer writes every vertex of every feature as a point
// shapefile named <stem>_vertices in c. Vertex coordinates are read as
// WGS 84, whatever CRS the feature geometries are in.
func WriteVertexLayer(dir, stem string, features []geometry.Feature, c crs.CRS, source string) (types.LayerSummary, error) {
	proj, err := crs.Projection(crs.WGS84, c)
	if err != nil {
		return types.LayerSummary{}, err
	}

	var points []geometry.Feature
	for _, f := range features {
		for _, v := range f.Vertices {
			name := f.Name
			if v.Label != "" && f.Kind != types.KindPoint {
				name = f.Name + " " + v.Label
			}
			points = append(points, geometry.Feature{
				Name:     name,
				Group:    f.Group,
				Kind:     types.KindPoint,
				Geometry: proj(orb.Point{v.X, v.Y}),
				Vertices: []types.Vertex{v},
				Page:     v.Page,
			})
		}
	}

	path := filepath.Join(dir, stem+"_vertices.shp")
	if err := writeLayer(path, shp.POINT, points, source); err != nil {
		return types.LayerSummary{}, err
	}
	if err := writeSidecars(path, c); err != nil {
		return types.LayerSummary{}, err
	}
	return summary(stem+"_vertices", types.KindPoint, path, points), nil
}

func writeLayer(path string, shape shp.ShapeType, features []geometry.Feature, source string) error {
	w, err := shp.Create(path, shape)
	if err != nil {
		return fmt.Errorf("creating shapefile %s: %w", path, err)
	}
	defer w.Close()

	if err := w.SetFields(layerFields); err != nil {
		return fmt.Errorf("setting fields on %s: %w", path, err)
	}

	for _, f := range features {
		s, err := toShape(f.Geometry)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		row := int(w.Write(s))
		attrs := []any{
			truncate(f.Name, 80),
			string(f.Kind),
			len(f.Vertices),
			f.Page,
			f.AreaM2,
			f.LengthM,
			truncate(source, maxText),
		}
		for field, value := range attrs {
			if err := w.WriteAttribute(row, field, value); err != nil {
				return fmt.Errorf("writing attribute %s of %s: %w", fieldNames[field], f.Name, err)
			}
		}
	}
	return nil
}

// toShape converts an orb geometry to its shapefile record. Polygon outer
// rings are written clockwise and holes counter-clockwise.
func toShape(g orb.Geometry) (shp.Shape, error) {
	switch g := g.(type) {
	case orb.Point:
		return &shp.Point{X: g[0], Y: g[1]}, nil
	case orb.LineString:
		return shp.NewPolyLine([][]shp.Point{shpPoints(g)}), nil
	case orb.Polygon:
		parts := make([][]shp.Point, len(g))
		for i, r := range g {
			ring := append(orb.Ring{}, r...)
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			if ring.Orientation() != want {
				ring.Reverse()
			}
			parts[i] = shpPoints(ring)
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		return &poly, nil
	}
	return nil, fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
}

func shpPoints[T ~[]orb.Point](pts T) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

func writeSidecars(shpPath string, c crs.CRS) error {
	base := strings.TrimSuffix(shpPath, ".shp")
	wkt, err := c.WKT()
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".prj", []byte(wkt), 0o644); err != nil {
		return fmt.Errorf("writing projection file: %w", err)
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return fmt.Errorf("writing code page file: %w", err)
	}
	return nil
}

func summary(name string, kind types.GeometryKind, path string, features []geometry.Feature) types.LayerSummary {
	b := geometry.Bound(features)
	return types.LayerSummary{
		Name:         name,
		GeometryType: kind,
		Path:         path,
		Features:     len(features),
		Bound:        [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	}
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
