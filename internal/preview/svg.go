// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package preview draws a static SVG map of a feature collection over
// basemap tiles in Web Mercator.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/pdiddy/pdf2shp/internal/basemap"
)

const (
	tileSize = 256

	// mercatorExtent is half the width of the Web Mercator world in metres.
	mercatorExtent = 20037508.342789244

	defaultWidth   = 800
	defaultHeight  = 600
	defaultPadding = 40
	defaultMaxZoom = 18

	// pointZoom is used when the features collapse to a single position.
	pointZoom = 16
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("no features to draw")

// TileSource fetches basemap tiles. *basemap.TileCache implements it.
type TileSource interface {
	Fetch(ctx context.Context, provider string, z, x, y int) (basemap.Tile, error)
}

// Options control the rendered map.
type Options struct {
	Width, Height int
	Padding       int

	// Provider is the basemap drawn under the features. Empty draws no tiles.
	Provider    string
	Attribution string
	MaxZoom     int

	// TileHref links tiles by URL. When nil, tiles are fetched from Tiles
	// and embedded as data URIs.
	TileHref func(z, x, y int) string
	Tiles    TileSource
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.Padding == 0 {
		o.Padding = defaultPadding
	}
	if o.Padding < 0 || o.Padding*2 >= min(o.Width, o.Height) {
		o.Padding = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = defaultMaxZoom
	}
}

// Bound returns the bound of every geometry in fc.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var (
		b  orb.Bound
		ok bool
	)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if !ok {
			b, ok = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b, ok
}

// FitZoom returns the deepest zoom, up to maxZoom, at which b fits in a
// width by height pixel box.
func FitZoom(b orb.Bound, width, height, maxZoom int) int {
	lo := worldPixel(b.Min, 0)
	hi := worldPixel(b.Max, 0)
	w, h := math.Abs(hi[0]-lo[0]), math.Abs(hi[1]-lo[1])
	if w == 0 && h == 0 {
		return min(pointZoom, maxZoom)
	}
	for z := maxZoom; z > 0; z-- {
		scale := math.Exp2(float64(z))
		if w*scale <= float64(width) && h*scale <= float64(height) {
			return z
		}
	}
	return 0
}

// worldPixel converts a WGS 84 point to pixel coordinates of the tile
// grid at zoom z, origin top left.
func worldPixel(p orb.Point, z int) orb.Point {
	m := project.Point(clampLat(p), project.WGS84.ToMercator)
	world := tileSize * math.Exp2(float64(z))
	return orb.Point{
		(m[0] + mercatorExtent) / (2 * mercatorExtent) * world,
		(mercatorExtent - m[1]) / (2 * mercatorExtent) * world,
	}
}

// clampLat keeps latitudes inside the Web Mercator range.
func clampLat(p orb.Point) orb.Point {
	const maxLat = 85.05112878
	return orb.Point{p[0], math.Max(-maxLat, math.Min(maxLat, p[1]))}
}

// RenderSVG writes an SVG map of fc, whose geometries must be WGS 84.
func RenderSVG(ctx context.Context, w io.Writer, fc *geojson.FeatureCollection, opts Options) error {
	opts.defaults()
	b, ok := Bound(fc)
	if !ok {
		return ErrEmpty
	}

	z := FitZoom(b, opts.Width-2*opts.Padding, opts.Height-2*opts.Padding, opts.MaxZoom)
	centre := worldPixel(b.Center(), z)
	origin := orb.Point{centre[0] - float64(opts.Width)/2, centre[1] - float64(opts.Height)/2}
	toPx := func(p orb.Point) orb.Point {
		wp := worldPixel(p, z)
		return orb.Point{wp[0] - origin[0], wp[1] - origin[1]}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	fmt.Fprintf(&buf, `<rect width="%d" height="%d" fill="#e5e3df"/>`+"\n", opts.Width, opts.Height)

	if opts.Provider != "" {
		if err := drawTiles(ctx, &buf, z, origin, opts); err != nil {
			return err
		}
	}

	buf.WriteString(`<g stroke="#d7263d" stroke-width="2" stroke-linejoin="round">` + "\n")
	for _, f := range fc.Features {
		drawGeometry(&buf, f.Geometry, toPx, f.Properties.MustString("name", ""))
	}
	buf.WriteString("</g>\n")

	if opts.Attribution != "" {
		buf.WriteString(`<text x="` + ftoa(float64(opts.Width-4)) + `" y="` + ftoa(float64(opts.Height-4)) +
			`" font-family="sans-serif" font-size="10" text-anchor="end" fill="#333">`)
		xml.EscapeText(&buf, []byte(stripTags(opts.Attribution)))
		buf.WriteString("</text>\n")
	}
	buf.WriteString("</svg>\n")

	_, err := w.Write(buf.Bytes())
	return err
}

func drawTiles(ctx context.Context, buf *bytes.Buffer, z int, origin orb.Point, opts Options) error {
	n := 1 << z
	x0 := int(math.Floor(origin[0] / tileSize))
	y0 := int(math.Floor(origin[1] / tileSize))
	x1 := int(math.Floor((origin[0] + float64(opts.Width)) / tileSize))
	y1 := int(math.Floor((origin[1] + float64(opts.Height)) / tileSize))

	for ty := max(y0, 0); ty <= min(y1, n-1); ty++ {
		for tx := x0; tx <= x1; tx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := maptile.New(uint32(((tx%n)+n)%n), uint32(ty), maptile.Zoom(z))

			var href string
			switch {
			case opts.TileHref != nil:
				href = opts.TileHref(z, int(t.X), int(t.Y))
			case opts.Tiles != nil:
				tile, err := opts.Tiles.Fetch(ctx, opts.Provider, z, int(t.X), int(t.Y))
				if err != nil {
					continue
				}
				href = "data:" + tile.ContentType + ";base64," + base64.StdEncoding.EncodeToString(tile.Data)
			default:
				continue
			}

			fmt.Fprintf(buf, `<image x="%s" y="%s" width="%d" height="%d" xlink:href="`,
				ftoa(float64(tx*tileSize)-origin[0]), ftoa(float64(ty*tileSize)-origin[1]), tileSize, tileSize)
			xml.EscapeText(buf, []byte(href))
			buf.WriteString("\"/>\n")
		}
	}
	return nil
}

func drawGeometry(buf *bytes.Buffer, g orb.Geometry, toPx func(orb.Point) orb.Point, name string) {
	switch g := g.(type) {
	case orb.Point:
		p := toPx(g)
		fmt.Fprintf(buf, `<circle cx="%s" cy="%s" r="4" fill="#d7263d" stroke="#fff" stroke-width="1">`, ftoa(p[0]), ftoa(p[1]))
		writeTitle(buf, name)
		buf.WriteString("</circle>\n")
	case orb.MultiPoint:
		for _, p := range g {
			drawGeometry(buf, p, toPx, name)
		}
	case orb.LineString:
		buf.WriteString(`<path fill="none" d="`)
		writePath(buf, g, toPx, false)
		buf.WriteString(`">`)
		writeTitle(buf, name)
		buf.WriteString("</path>\n")
	case orb.MultiLineString:
		for _, ls := range g {
			drawGeometry(buf, ls, toPx, name)
		}
	case orb.Polygon:
		buf.WriteString(`<path fill="#d7263d" fill-opacity="0.25" fill-rule="evenodd" d="`)
		for _, r := range g {
			writePath(buf, r, toPx, true)
		}
		buf.WriteString(`">`)
		writeTitle(buf, name)
		buf.WriteString("</path>\n")
	case orb.MultiPolygon:
		for _, p := range g {
			drawGeometry(buf, p, toPx, name)
		}
	case orb.Collection:
		for _, c := range g {
			drawGeometry(buf, c, toPx, name)
		}
	}
}

func writePath[T ~[]orb.Point](buf *bytes.Buffer, pts T, toPx func(orb.Point) orb.Point, close bool) {
	for i, pt := range pts {
		p := toPx(pt)
		if i == 0 {
			buf.WriteString("M")
		} else {
			buf.WriteString(" L")
		}
		buf.WriteString(ftoa(p[0]) + " " + ftoa(p[1]))
	}
	if close && len(pts) > 0 {
		buf.WriteString(" Z ")
	}
}

func writeTitle(buf *bytes.Buffer, name string) {
	if name == "" {
		return
	}
	buf.WriteString("<title>")
	xml.EscapeText(buf, []byte(name))
	buf.WriteString("</title>")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// stripTags removes HTML markup from provider attributions and decodes
// the entities they use.
func stripTags(s string) string {
	var out []rune
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out = append(out, r)
		}
	}
	return entityReplacer.Replace(string(out))
}

var entityReplacer = strings.NewReplacer("&copy;", "©", "&mdash;", "-", "&amp;", "&")
