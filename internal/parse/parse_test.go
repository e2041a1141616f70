// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf2shp/internal/crs"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

func TestParseLine(t *testing.T) {
	utm33 := crs.UTM(33, true)
	tests := []struct {
		name      string
		line      string
		crs       crs.CRS
		opts      Options
		wantOK    bool
		wantLabel string
		wantX     float64
		wantY     float64
		wantZ     float64
		wantFmt   types.CoordinateFormat
	}{
		{
			name: "labelled easting northing", line: "P1 500123.45 4123456.78", crs: utm33,
			wantOK: true, wantLabel: "P1", wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "comma separated with point number", line: "1, 500123.45, 4123456.78", crs: utm33,
			wantOK: true, wantLabel: "1", wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "northing first in UTM is swapped", line: "P2 4123456.78 500123.45", crs: utm33,
			wantOK: true, wantLabel: "P2", wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "axis tags", line: "BM N 4123456.78 E 500123.45", crs: utm33,
			wantOK: true, wantLabel: "BM", wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "suffix axis tags", line: "4123456.78N 500123.45E", crs: utm33,
			wantOK: true, wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "word label with point number", line: "Point 4 500200.00 4123400.00", crs: utm33,
			wantOK: true, wantLabel: "Point 4", wantX: 500200, wantY: 4123400, wantFmt: types.FormatProjected,
		},
		{
			name: "elevation column", line: "P3 500123.45 4123456.78 312.5", crs: utm33,
			wantOK: true, wantLabel: "P3", wantX: 500123.45, wantY: 4123456.78, wantZ: 312.5, wantFmt: types.FormatProjected,
		},
		{
			name: "axis letter names are labels", line: "E1 500123.45 4123456.78", crs: utm33,
			wantOK: true, wantLabel: "E1", wantX: 500123.45, wantY: 4123456.78, wantFmt: types.FormatProjected,
		},
		{
			name: "decimal degrees lat lon", line: "40.4461, -79.9822",
			wantOK: true, wantX: -79.9822, wantY: 40.4461, wantFmt: types.FormatDecimal,
		},
		{
			name: "decimal degrees lon first detected", line: "A -120.5 35.25",
			wantOK: true, wantLabel: "A", wantX: -120.5, wantY: 35.25, wantFmt: types.FormatDecimal,
		},
		{
			name: "decimal with hemispheres", line: "40.4461N 79.9822W",
			wantOK: true, wantX: -79.9822, wantY: 40.4461, wantFmt: types.FormatDecimal,
		},
		{
			name: "swap axes option", line: "-79.9822 40.4461", opts: Options{SwapAxes: true},
			wantOK: true, wantX: -79.9822, wantY: 40.4461, wantFmt: types.FormatDecimal,
		},
		{
			name: "dms suffix hemispheres", line: `S1 40°26'46"N 79°58'56"W`,
			wantOK: true, wantLabel: "S1", wantX: -(79 + 58.0/60 + 56.0/3600), wantY: 40 + 26.0/60 + 46.0/3600, wantFmt: types.FormatDMS,
		},
		{
			name: "dms prefix hemispheres", line: `N 33°51'35.9" E 151°12'40"`,
			wantOK: true, wantX: 151 + 12.0/60 + 40.0/3600, wantY: 33 + 51.0/60 + 35.9/3600, wantFmt: types.FormatDMS,
		},
		{
			name: "dms southern", line: `33°52'S 151°12'E`,
			wantOK: true, wantX: 151.2, wantY: -(33 + 52.0/60), wantFmt: types.FormatDMS,
		},
		{name: "years are not coordinates", line: "2019 2020"},
		{name: "page footer", line: "Sheet 12 of 40"},
		{name: "area line", line: "Area 1234.56 789.01"},
		{name: "single number", line: "P1 500123.45"},
		{name: "prose", line: "The boundary follows the creek for 120.5 m"},
		{name: "dms missing hemisphere", line: `40°26'46" 79°58'56"W`},
		{name: "dms bad minutes", line: `40°76'46"N 79°58'56"W`},
		{name: "out of utm range", line: "P9 1500.25 4123456.78", crs: utm33},
		{name: "latitude out of range", line: "95.5, 100.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ParseLine(tt.line, tt.crs, tt.opts)
			require.Equal(t, tt.wantOK, ok, "ParseLine(%q)", tt.line)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantLabel, v.Label)
			assert.InDelta(t, tt.wantX, v.X, 1e-9)
			assert.InDelta(t, tt.wantY, v.Y, 1e-9)
			assert.InDelta(t, tt.wantZ, v.Z, 1e-9)
			assert.Equal(t, tt.wantFmt, v.Format)
		})
	}
}

func TestDetectCRS(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   crs.CRS
		wantOK bool
	}{
		{"epsg code", "Coordinates in EPSG:32617", crs.UTM(17, true), true},
		{"epsg with hash", "Datum EPSG #4326", crs.WGS84, true},
		{"utm zone north", "Grid: WGS 84 / UTM Zone 33N", crs.UTM(33, true), true},
		{"utm zone south word", "UTM zone 56 south", crs.UTM(56, false), true},
		{"utm without hemisphere", "UTM 18", crs.UTM(18, true), true},
		{"unsupported epsg falls through to wgs84", "EPSG:2154 and WGS84", crs.WGS84, true},
		{"wgs84 only", "Positions referenced to WGS-84", crs.WGS84, true},
		{"nothing", "Survey plan of lot 7", crs.CRS{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectCRS(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePages_GroupsByHeading(t *testing.T) {
	pages := []types.PageText{
		{Number: 1, Text: `SURVEY PLAN
Coordinate system: WGS 84 / UTM zone 33N
Parcel 12:
Point Easting Northing
P1 500000.00 4100000.00
P2 500100.00 4100000.00
P3 500100.00 4100100.00
Page 1 of 2`},
		{Number: 2, Text: `P4 500000.00 4100100.00
P1 500000.00 4100000.00
Line A
L1 500200.00 4100000.00
L2 500300.00 4100050.00`},
	}

	res := ParsePages(pages, Options{})
	assert.Equal(t, crs.UTM(33, true), res.CRS)
	assert.Equal(t, CRSDetected, res.CRSSource)
	assert.Equal(t, 7, res.Vertices)
	require.Len(t, res.Groups, 2)

	parcel := res.Groups[0]
	assert.Equal(t, "Parcel 12", parcel.Name)
	assert.Equal(t, "parcel", parcel.Heading)
	assert.Equal(t, 1, parcel.Page)
	require.Len(t, parcel.Vertices, 5)
	assert.Equal(t, 2, parcel.Vertices[3].Page)

	line := res.Groups[1]
	assert.Equal(t, "Line A", line.Name)
	assert.Equal(t, "line", line.Heading)
	assert.Len(t, line.Vertices, 2)
}

func TestParsePages_UnnamedRunsSplitOnProse(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: `Observed positions
40.4461, -79.9822
40.4470, -79.9810
Second visit
40.5000, -80.0000`}}

	res := ParsePages(pages, Options{})
	assert.Equal(t, crs.WGS84, res.CRS)
	assert.Equal(t, CRSInferred, res.CRSSource)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "Feature 1", res.Groups[0].Name)
	assert.Len(t, res.Groups[0].Vertices, 2)
	assert.Equal(t, "Feature 2", res.Groups[1].Name)
	assert.Equal(t, 5, res.Groups[1].Vertices[0].Line)
}

func TestParsePages_DeclaredCRSWins(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: "UTM Zone 33N\nP1 500000.00 4100000.00"}}
	res := ParsePages(pages, Options{SourceCRS: crs.UTM(34, true)})
	assert.Equal(t, crs.UTM(34, true), res.CRS)
	assert.Equal(t, CRSDeclared, res.CRSSource)
}

func TestParsePages_ProjectedWithoutCRS(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: "P1 500000.00 4100000.00\nP2 500100.00 4100000.00"}}
	res := ParsePages(pages, Options{})
	assert.True(t, res.CRS.IsZero())
	assert.Equal(t, CRSUnknown, res.CRSSource)
	assert.True(t, res.HasProjected())
	assert.Contains(t, res.Warnings, "projected coordinates found but no CRS declared or detected")
}

func TestParsePages_OutOfRangeWarns(t *testing.T) {
	pages := []types.PageText{{Number: 3, Text: "EPSG:32633\nP1 950000.00 4100000.00\nP2 500100.00 4100000.00"}}
	res := ParsePages(pages, Options{})
	assert.Equal(t, 1, res.Vertices)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 3 line 2")
	assert.Contains(t, res.Warnings[0], "EPSG:32633")
}

func TestParsePages_EmptyHeadingWarns(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: "Lot 1\nLot 2\n40.1, -79.1"}}
	res := ParsePages(pages, Options{})
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Lot 2", res.Groups[0].Name)
	assert.Equal(t, []string{"Lot 1 (page 1): no coordinates"}, res.Warnings)
}

func TestParsePages_TrailingEmptyHeadingWarns(t *testing.T) {
	pages := []types.PageText{{Number: 4, Text: "40.1, -79.1\nParcel 9"}}
	res := ParsePages(pages, Options{})
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"Parcel 9 (page 4): no coordinates"}, res.Warnings)
}

func TestParsePages_MeasurementLinesAreNotHeadings(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: `UTM Zone 33N
Parcel 1
P1 500000.00 4100000.00
P2 500100.00 4100000.00
P3 500100.00 4100100.00
P1 500000.00 4100000.00
Area: 10000.00 m2
Lot area = 0.25 ha
Boundary 120 m
P9 500500.00 4100500.00`}}

	res := ParsePages(pages, Options{})
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Parcel 1", res.Groups[0].Name)
	assert.Len(t, res.Groups[0].Vertices, 5)
	assert.Empty(t, res.Warnings)
}

func TestParsePages_HeadingsWithNumbersStayHeadings(t *testing.T) {
	for _, line := range []string{"Parcel 12", "Lot: 7", "Tract 3 Harbor Road", "Line A"} {
		t.Run(line, func(t *testing.T) {
			res := ParsePages([]types.PageText{{Number: 1, Text: line + "\n40.1, -79.1"}}, Options{})
			require.Len(t, res.Groups, 1)
			assert.Equal(t, line, res.Groups[0].Name)
		})
	}
}

func TestParsePages_GeographicCRSWithProjectedRows(t *testing.T) {
	pages := []types.PageText{{Number: 1, Text: `Datum: WGS 84
Parcel 7
1 500000.00 4100000.00
2 500100.00 4100000.00
3 500100.00 4100100.00`}}

	res := ParsePages(pages, Options{})
	assert.Equal(t, crs.WGS84, res.CRS)
	assert.Equal(t, CRSDetected, res.CRSSource)
	assert.True(t, res.HasProjected())
	assert.Contains(t, res.Warnings, "projected coordinates found but the detected CRS EPSG:4326 is geographic")
}
