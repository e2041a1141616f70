// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/pdf2shp/pkg/types"
)

// row is a coordinate row before axis normalization. When axesKnown is
// set, a is already X (easting/longitude) and b is Y.
type row struct {
	label     string
	a, b      float64
	z         float64
	hasZ      bool
	axesKnown bool
	format    types.CoordinateFormat
}

var (
	fieldSep = regexp.MustCompile(`[\s,;|]+`)
	numToken = regexp.MustCompile(`^([NSEW])?([-+]?\d+(?:\.\d+)?)([NSEW])?$`)

	dmsAngle = regexp.MustCompile(`([NSEW])?\s*(\d{1,3})\s*[°º]\s*(?:(\d{1,2}(?:\.\d+)?)\s*['′’])?\s*(?:(\d{1,2}(?:\.\d+)?)\s*(?:"|″|”|''))?\s*([NSEW])?`)
)

// stopLabels are words that lead numeric rows which are not coordinates.
var stopLabels = map[string]bool{
	"total": true, "area": true, "sum": true, "page": true, "sheet": true,
	"scale": true, "date": true, "length": true, "distance": true,
	"bearing": true, "perimeter": true, "elevation": true, "acres": true,
	"hectares": true, "chainage": true,
}

// maxLabelLen bounds the leading label token of a coordinate row.
const maxLabelLen = 16

type numTok struct {
	v        float64
	decimals bool
	integer  bool
	digits   int
	axis     byte
}

func parseRow(line string) (row, bool) {
	if strings.ContainsAny(line, "°º") {
		return parseDMSRow(line)
	}
	return parseNumericRow(line)
}

func parseNumericRow(line string) (row, bool) {
	fields := fieldSep.Split(strings.TrimSpace(line), -1)
	if len(fields) < 2 {
		return row{}, false
	}

	var (
		label string
		nums  []numTok
	)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "" {
			continue
		}

		// A lone axis letter tags the number that follows it, or the one
		// before it when nothing numeric follows.
		if isAxisLetter(f) {
			if i+1 < len(fields) && numToken.MatchString(fields[i+1]) {
				tok, ok := parseNumToken(fields[i+1])
				if !ok || tok.axis != 0 {
					return row{}, false
				}
				tok.axis = f[0]
				nums = append(nums, tok)
				i++
				continue
			}
			if len(nums) > 0 && nums[len(nums)-1].axis == 0 {
				nums[len(nums)-1].axis = f[0]
				continue
			}
			return row{}, false
		}

		if tok, ok := parseNumToken(f); ok {
			// "N1" or "E12" leading a row is a point name, not a coordinate.
			if len(nums) == 0 && label == "" && tok.axis != 0 && tok.integer && tok.digits <= 4 {
				label = f
				continue
			}
			nums = append(nums, tok)
			continue
		}

		if len(nums) == 0 && label == "" && len(f) <= maxLabelLen && !stopLabels[strings.ToLower(strings.TrimRight(f, ":."))] {
			label = f
			continue
		}
		return row{}, false
	}

	switch len(nums) {
	case 2:
	case 3:
		switch {
		case label == "" && isLabelNumber(nums[0]):
			label = strconv.FormatFloat(nums[0].v, 'f', -1, 64)
			nums = nums[1:]
		case isWord(label) && isLabelNumber(nums[0]):
			// "BM 12 500123.45 4123456.78"
			label += " " + strconv.FormatFloat(nums[0].v, 'f', -1, 64)
			nums = nums[1:]
		}
	case 4:
		if label != "" || !isLabelNumber(nums[0]) {
			return row{}, false
		}
		label = strconv.FormatFloat(nums[0].v, 'f', -1, 64)
		nums = nums[1:]
	default:
		return row{}, false
	}

	r := row{label: label, a: nums[0].v, b: nums[1].v}
	if len(nums) == 3 {
		r.z, r.hasZ = nums[2].v, true
	}

	degrees := math.Abs(r.a) <= 180 && math.Abs(r.b) <= 180
	if degrees {
		r.format = types.FormatDecimal
		if !nums[0].decimals && !nums[1].decimals {
			return row{}, false
		}
	} else {
		r.format = types.FormatProjected
		if !nums[0].decimals && !nums[1].decimals &&
			(math.Abs(r.a) < 10000 || math.Abs(r.b) < 10000) {
			return row{}, false
		}
	}

	if nums[0].axis != 0 && nums[1].axis != 0 {
		if !applyAxes(&r, nums[0].axis, nums[1].axis, degrees) {
			return row{}, false
		}
	}
	return r, true
}

// applyAxes orders a and b by their axis letters. Degree values treat the
// letters as hemispheres; projected values treat E and N as column tags.
func applyAxes(r *row, axisA, axisB byte, degrees bool) bool {
	isLat := func(c byte) bool { return c == 'N' || c == 'S' }
	if isLat(axisA) == isLat(axisB) {
		return false
	}
	if degrees {
		if axisA == 'S' || axisA == 'W' {
			r.a = -math.Abs(r.a)
		}
		if axisB == 'S' || axisB == 'W' {
			r.b = -math.Abs(r.b)
		}
	} else if axisA == 'S' || axisA == 'W' || axisB == 'S' || axisB == 'W' {
		return false
	}
	if isLat(axisA) {
		r.a, r.b = r.b, r.a
	}
	r.axesKnown = true
	return true
}

func parseNumToken(s string) (numTok, bool) {
	m := numToken.FindStringSubmatch(s)
	if m == nil {
		return numTok{}, false
	}
	if m[1] != "" && m[3] != "" {
		return numTok{}, false
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return numTok{}, false
	}
	tok := numTok{
		v:        v,
		decimals: strings.Contains(m[2], "."),
		digits:   len(strings.TrimLeft(m[2], "+-")),
	}
	tok.integer = !tok.decimals
	switch {
	case m[1] != "":
		tok.axis = m[1][0]
	case m[3] != "":
		tok.axis = m[3][0]
	}
	return tok, true
}

// isLabelNumber reports whether a leading number looks like a point
// number rather than a coordinate.
func isLabelNumber(t numTok) bool {
	return t.integer && t.axis == 0 && t.digits <= 4 && t.v >= 0
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isAxisLetter(s string) bool {
	return len(s) == 1 && strings.ContainsAny(s, "NSEW")
}

func parseDMSRow(line string) (row, bool) {
	matches := dmsAngle.FindAllStringSubmatchIndex(line, -1)
	if len(matches) != 2 {
		return row{}, false
	}

	var (
		vals             [2]float64
		prefixes, suffix [2]string
	)
	for i, m := range matches {
		sub := func(k int) string {
			if m[2*k] < 0 {
				return ""
			}
			return line[m[2*k]:m[2*k+1]]
		}
		prefixes[i], suffix[i] = sub(1), sub(5)

		deg, _ := strconv.ParseFloat(sub(2), 64)
		var min, sec float64
		if s := sub(3); s != "" {
			min, _ = strconv.ParseFloat(s, 64)
		}
		if s := sub(4); s != "" {
			sec, _ = strconv.ParseFloat(s, 64)
		}
		if min >= 60 || sec >= 60 {
			return row{}, false
		}
		vals[i] = deg + min/60 + sec/3600
	}

	// With prefix letters ("N 40°.. W 79°..") the first angle's trailing
	// letter is really the second angle's prefix.
	var hemis [2]string
	if prefixes[0] != "" {
		hemis[0] = prefixes[0]
		hemis[1] = prefixes[1]
		if hemis[1] == "" {
			hemis[1] = suffix[0]
		} else if suffix[0] != "" {
			return row{}, false
		}
	} else {
		if prefixes[1] != "" {
			return row{}, false
		}
		hemis[0], hemis[1] = suffix[0], suffix[1]
	}
	if hemis[0] == "" || hemis[1] == "" {
		return row{}, false
	}

	r := row{a: vals[0], b: vals[1], format: types.FormatDMS}
	if !applyAxes(&r, hemis[0][0], hemis[1][0], true) {
		return row{}, false
	}
	if math.Abs(r.b) > 90 || math.Abs(r.a) > 180 {
		return row{}, false
	}

	label := strings.Trim(line[:matches[0][0]], " \t,;:|-")
	if len(label) <= maxLabelLen && !strings.ContainsAny(label, " \t") {
		r.label = label
	}
	return r, true
}
