// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package geometry turns parsed feature groups into orb geometries in
// WGS 84, measures them, and reprojects them for export.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/pdiddy/pdf2shp/internal/crs"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

// ErrUnknownCRS is returned when projected vertices have no CRS to read them with.
var ErrUnknownCRS = errors.New("source CRS unknown for projected coordinates")

// closeTolerance is how near, in degrees, the last vertex must be to the
// first for a group to count as a closed ring (about 1 cm).
const closeTolerance = 1e-7

// minRingArea is the smallest ring area, in square degrees, that still
// counts as a polygon.
const minRingArea = 1e-14

var (
	polygonHeadings = map[string]bool{"parcel": true, "lot": true, "tract": true, "polygon": true, "area": true, "boundary": true}
	lineHeadings    = map[string]bool{"line": true, "route": true, "road": true}
	pointHeadings   = map[string]bool{"point": true, "station": true}
)

// Feature is one output geometry with its attributes.
type Feature struct {
	Name     string
	Group    string
	Heading  string
	Kind     types.GeometryKind
	Geometry orb.Geometry
	Vertices []types.Vertex
	Page     int
	AreaM2   float64
	LengthM  float64
}

// ToWGS84 returns a copy of groups with every vertex in longitude/latitude.
// Projected vertices are read in projected, which must be a projected CRS;
// degree vertices pass through.
func ToWGS84(groups []types.FeatureGroup, projected crs.CRS) ([]types.FeatureGroup, error) {
	var proj orb.Projection
	out := make([]types.FeatureGroup, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Vertices = make([]types.Vertex, len(g.Vertices))
		for j, v := range g.Vertices {
			if v.Format == types.FormatProjected {
				if proj == nil {
					if projected.IsZero() {
						return nil, ErrUnknownCRS
					}
					if projected.IsGeographic() {
						return nil, fmt.Errorf("%w: %s is geographic", ErrUnknownCRS, projected)
					}
					p, err := crs.Projection(projected, crs.WGS84)
					if err != nil {
						return nil, err
					}
					proj = p
				}
				pt := proj(orb.Point{v.X, v.Y})
				v.X, v.Y = pt[0], pt[1]
			}
			out[i].Vertices[j] = v
		}
	}
	return out, nil
}

// Build turns WGS 84 groups into features. kind forces the geometry of
// every group unless it is empty or auto. Warnings describe groups that
// had to fall back to a simpler geometry.
func Build(groups []types.FeatureGroup, kind types.GeometryKind) ([]Feature, []string) {
	var (
		features []Feature
		warnings []string
	)
	for _, g := range groups {
		verts := dedupe(g.Vertices)
		if len(verts) == 0 {
			continue
		}

		want := kind
		if want == "" || want == types.KindAuto {
			want = autoKind(g.Heading, verts)
		}

		got := want
		switch want {
		case types.KindPolygon:
			ring := openRing(verts)
			if len(ring) < 3 || ringArea(ring) < minRingArea {
				got = types.KindLineString
				if len(verts) < 2 {
					got = types.KindPoint
				}
			}
		case types.KindLineString:
			if len(verts) < 2 {
				got = types.KindPoint
			}
		}
		if got != want {
			warnings = append(warnings, fmt.Sprintf("%s: %d vertices cannot form a %s, written as %s", g.Name, len(verts), want, got))
		}

		switch got {
		case types.KindPolygon:
			features = append(features, polygonFeature(g, verts))
		case types.KindLineString:
			features = append(features, lineFeature(g, verts))
		default:
			features = append(features, pointFeatures(g, verts)...)
		}
	}
	return features, warnings
}

func autoKind(heading string, verts []types.Vertex) types.GeometryKind {
	switch {
	case polygonHeadings[heading]:
		return types.KindPolygon
	case lineHeadings[heading]:
		return types.KindLineString
	case pointHeadings[heading]:
		return types.KindPoint
	case len(verts) >= 4 && closed(verts):
		return types.KindPolygon
	}
	return types.KindPoint
}

func polygonFeature(g types.FeatureGroup, verts []types.Vertex) Feature {
	ring := openRing(verts)
	ring = append(ring, ring[0])
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	poly := orb.Polygon{ring}
	return Feature{
		Name:     g.Name,
		Group:    g.Name,
		Heading:  g.Heading,
		Kind:     types.KindPolygon,
		Geometry: poly,
		Vertices: verts,
		Page:     g.Page,
		AreaM2:   math.Abs(geo.Area(poly)),
		LengthM:  geo.Length(poly),
	}
}

func lineFeature(g types.FeatureGroup, verts []types.Vertex) Feature {
	ls := make(orb.LineString, len(verts))
	for i, v := range verts {
		ls[i] = orb.Point{v.X, v.Y}
	}
	return Feature{
		Name:     g.Name,
		Group:    g.Name,
		Heading:  g.Heading,
		Kind:     types.KindLineString,
		Geometry: ls,
		Vertices: verts,
		Page:     g.Page,
		LengthM:  geo.Length(ls),
	}
}

func pointFeatures(g types.FeatureGroup, verts []types.Vertex) []Feature {
	out := make([]Feature, len(verts))
	for i, v := range verts {
		out[i] = Feature{
			Name:     pointName(g, v, i, len(verts)),
			Group:    g.Name,
			Heading:  g.Heading,
			Kind:     types.KindPoint,
			Geometry: orb.Point{v.X, v.Y},
			Vertices: []types.Vertex{v},
			Page:     v.Page,
		}
	}
	return out
}

func pointName(g types.FeatureGroup, v types.Vertex, i, n int) string {
	switch {
	case v.Label != "" && g.Heading == "":
		return v.Label
	case v.Label != "":
		return g.Name + " " + v.Label
	case n == 1:
		return g.Name
	}
	return fmt.Sprintf("%s #%d", g.Name, i+1)
}

// dedupe drops consecutive repeated positions.
func dedupe(verts []types.Vertex) []types.Vertex {
	out := make([]types.Vertex, 0, len(verts))
	for _, v := range verts {
		if n := len(out); n > 0 && samePosition(out[n-1], v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func closed(verts []types.Vertex) bool {
	return samePosition(verts[0], verts[len(verts)-1])
}

func samePosition(a, b types.Vertex) bool {
	return math.Abs(a.X-b.X) <= closeTolerance && math.Abs(a.Y-b.Y) <= closeTolerance
}

// openRing returns the distinct ring positions without the closing vertex.
func openRing(verts []types.Vertex) orb.Ring {
	if len(verts) > 1 && closed(verts) {
		verts = verts[:len(verts)-1]
	}
	ring := make(orb.Ring, len(verts))
	for i, v := range verts {
		ring[i] = orb.Point{v.X, v.Y}
	}
	return ring
}

// ringArea is the planar area in square degrees, used only to spot
// collinear rings.
func ringArea(open orb.Ring) float64 {
	r := append(orb.Ring{}, open...)
	r = append(r, open[0])
	return planar.Area(r)
}

// Reproject returns copies of features with geometries in to. Features
// must be in WGS 84.
func Reproject(features []Feature, to crs.CRS) ([]Feature, error) {
	proj, err := crs.Projection(crs.WGS84, to)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, len(features))
	for i, f := range features {
		out[i] = f
		out[i].Geometry = project.Geometry(orb.Clone(f.Geometry), proj)
	}
	return out, nil
}

// Bound returns the bound of all feature geometries.
func Bound(features []Feature) orb.Bound {
	if len(features) == 0 {
		return orb.Bound{}
	}
	b := features[0].Geometry.Bound()
	for _, f := range features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// FeatureCollection converts features to GeoJSON with their attributes
// as properties.
func FeatureCollection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = i + 1
		gf.Properties["name"] = f.Name
		gf.Properties["group"] = f.Group
		gf.Properties["kind"] = string(f.Kind)
		gf.Properties["page"] = f.Page
		gf.Properties["vertices"] = len(f.Vertices)
		if f.AreaM2 > 0 {
			gf.Properties["area_m2"] = round(f.AreaM2, 2)
		}
		if f.LengthM > 0 {
			gf.Properties["length_m"] = round(f.LengthM, 2)
		}
		fc.Append(gf)
	}
	return fc
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
