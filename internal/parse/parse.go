// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse finds coordinate rows, feature headings and CRS hints in
// the plain text of PDF pages.
package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/pdf2shp/internal/crs"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

// CRS provenance values reported in Result.CRSSource.
const (
	CRSDeclared = "declared"
	CRSDetected = "detected"
	CRSInferred = "inferred"
	CRSUnknown  = "unknown"
)

// UTM easting bounds; anything outside is not inside a zone.
const (
	minUTMEasting = 100000
	maxUTMEasting = 900000
	utmSwapLimit  = 1000000
)

// maxHeadingWords bounds how long a heading line may be.
const maxHeadingWords = 6

// Options controls axis handling and the source CRS.
type Options struct {
	// SourceCRS overrides detection when non-zero.
	SourceCRS crs.CRS

	// SwapAxes flips the two columns of untagged numeric rows.
	SwapAxes bool
}

// Result holds everything found in a document's text.
type Result struct {
	Groups []types.FeatureGroup

	// CRS applies to projected vertices. Degree vertices are always WGS 84.
	CRS       crs.CRS
	CRSSource string

	Vertices int
	Skipped  int
	Warnings []string
}

// HasProjected reports whether any vertex is an easting/northing pair.
func (r Result) HasProjected() bool {
	for _, g := range r.Groups {
		for _, v := range g.Vertices {
			if v.Format == types.FormatProjected {
				return true
			}
		}
	}
	return false
}

var (
	epsgHint  = regexp.MustCompile(`(?i)\bEPSG\s*[:#]?\s*(\d{4,5})\b`)
	utmHint   = regexp.MustCompile(`(?i)\bUTM\b[^\n\d]{0,12}(\d{1,2})\s*(north|south|N|S)?\b`)
	wgs84Hint = regexp.MustCompile(`(?i)\bWGS\s*-?\s*84\b`)

	headingPattern = regexp.MustCompile(`(?i)^(parcel|lot|tract|polygon|area|boundary|line|route|road|point|station|feature)\b`)
	headerPattern  = regexp.MustCompile(`(?i)\b(easting|northing|latitude|longitude|lat|lon|long|coordinates?)\b`)

	// measurePattern matches summary lines such as "Area: 10000.00 m2" or
	// "Lot area = 0.25 ha" that share a keyword with headings.
	measurePattern = regexp.MustCompile(`(?i)^[a-z]+(?:\s+[a-z]+)?\s*(?:[:=]\s*[-+]?[\d,]*\.\d+|[:=]?\s*[-+]?[\d,]+(?:\.\d+)?\s*(?:m2|m²|sq\.?\s*(?:m|ft)|ha|hectares?|acres?|ac|ft2|km2?|m|ft|metres?|meters?|feet)(?:\s|$|[.,;)]))`)
)

// DetectCRS looks for an EPSG code, then a UTM zone, then a WGS 84
// mention. Codes this tool cannot transform are ignored.
func DetectCRS(text string) (crs.CRS, bool) {
	for _, m := range epsgHint.FindAllStringSubmatch(text, -1) {
		code, _ := strconv.Atoi(m[1])
		c := crs.CRS{EPSG: code}
		if c.Validate() == nil {
			return c, true
		}
	}

	if m := utmHint.FindStringSubmatch(text); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			h := strings.ToUpper(m[2])
			return crs.UTM(zone, !strings.HasPrefix(h, "S")), true
		}
	}

	if wgs84Hint.MatchString(text) {
		return crs.WGS84, true
	}
	return crs.CRS{}, false
}

// ParseLine parses a single line as a coordinate row. Axis normalization
// for untagged rows follows opts and c, the CRS of projected values.
func ParseLine(line string, c crs.CRS, opts Options) (types.Vertex, bool) {
	r, ok := parseRow(line)
	if !ok {
		return types.Vertex{}, false
	}
	return normalize(r, c, opts)
}

// normalize orders the row's values as X/Y and rejects values outside the
// CRS's valid range.
func normalize(r row, c crs.CRS, opts Options) (types.Vertex, bool) {
	x, y := r.a, r.b
	if !r.axesKnown {
		switch r.format {
		case types.FormatDecimal:
			// Documents list "lat, lon" unless the first value cannot be a latitude.
			x, y = r.b, r.a
			if math.Abs(r.a) > 90 {
				x, y = r.a, r.b
			}
			if opts.SwapAxes {
				x, y = y, x
			}
		case types.FormatProjected:
			if opts.SwapAxes {
				x, y = y, x
			} else if _, _, isUTM := c.UTMZone(); isUTM && x > utmSwapLimit && y < utmSwapLimit {
				x, y = y, x
			}
		}
	}

	switch r.format {
	case types.FormatDecimal, types.FormatDMS:
		if math.Abs(y) > 90 || math.Abs(x) > 180 {
			return types.Vertex{}, false
		}
	case types.FormatProjected:
		if _, _, isUTM := c.UTMZone(); isUTM && (x < minUTMEasting || x > maxUTMEasting || y < 0) {
			return types.Vertex{}, false
		}
	}

	return types.Vertex{
		Label:  r.label,
		X:      x,
		Y:      y,
		Z:      r.z,
		HasZ:   r.hasZ,
		Format: r.format,
	}, true
}

// ParsePages scans every page and groups vertices into features. Headings
// start named groups that run until the next heading; vertices outside a
// heading form unnamed groups split by any non-coordinate line.
func ParsePages(pages []types.PageText, opts Options) Result {
	var res Result

	var all strings.Builder
	for _, p := range pages {
		all.WriteString(p.Text)
		all.WriteByte('\n')
	}
	switch {
	case !opts.SourceCRS.IsZero():
		res.CRS, res.CRSSource = opts.SourceCRS, CRSDeclared
	default:
		if c, ok := DetectCRS(all.String()); ok {
			res.CRS, res.CRSSource = c, CRSDetected
		} else {
			res.CRSSource = CRSUnknown
		}
	}

	b := &grouper{}
	for _, p := range pages {
		for i, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if r, ok := parseRow(line); ok {
				v, ok := normalize(r, res.CRS, opts)
				if !ok {
					res.Skipped++
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("page %d line %d: coordinates out of range for %s: %q", p.Number, i+1, rangeName(r, res.CRS), line))
					continue
				}
				v.Page, v.Line = p.Number, i+1
				b.add(v)
				res.Vertices++
				continue
			}

			if headerPattern.MatchString(line) && !strings.ContainsAny(line, "0123456789") {
				continue
			}

			if m := headingPattern.FindStringSubmatch(line); m != nil && len(strings.Fields(line)) <= maxHeadingWords && !measurePattern.MatchString(line) {
				b.heading(strings.TrimRight(line, ":."), strings.ToLower(m[1]), p.Number)
				continue
			}

			b.breakRun()
		}
	}
	res.Groups = b.finish()
	res.Warnings = append(res.Warnings, b.warnings...)

	switch {
	case res.CRSSource == CRSUnknown && res.HasProjected():
		res.Warnings = append(res.Warnings, "projected coordinates found but no CRS declared or detected")
	case res.CRSSource == CRSUnknown && res.Vertices > 0:
		res.CRS, res.CRSSource = crs.WGS84, CRSInferred
	case res.CRS.IsGeographic() && res.HasProjected():
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("projected coordinates found but the %s CRS %s is geographic", res.CRSSource, res.CRS))
	}
	return res
}

func rangeName(r row, c crs.CRS) string {
	if r.format == types.FormatProjected && !c.IsZero() {
		return c.String()
	}
	return "WGS 84"
}

// grouper accumulates vertices into feature groups.
type grouper struct {
	groups   []types.FeatureGroup
	warnings []string
	current  *types.FeatureGroup
	named    bool
	unnamed  int
}

func (g *grouper) heading(name, keyword string, page int) {
	g.flush()
	g.current = &types.FeatureGroup{Name: name, Heading: keyword, Page: page}
	g.named = true
}

func (g *grouper) add(v types.Vertex) {
	if g.current == nil {
		g.unnamed++
		g.current = &types.FeatureGroup{Name: fmt.Sprintf("Feature %d", g.unnamed), Page: v.Page}
		g.named = false
	}
	g.current.Vertices = append(g.current.Vertices, v)
}

// breakRun ends an unnamed run. Named groups continue across prose.
func (g *grouper) breakRun() {
	if g.current != nil && !g.named {
		g.flush()
	}
}

func (g *grouper) flush() {
	switch {
	case g.current == nil:
	case len(g.current.Vertices) > 0:
		g.groups = append(g.groups, *g.current)
	case g.named:
		g.warnings = append(g.warnings,
			fmt.Sprintf("%s (page %d): no coordinates", g.current.Name, g.current.Page))
	}
	g.current = nil
	g.named = false
}

func (g *grouper) finish() []types.FeatureGroup {
	g.flush()
	return g.groups
}
