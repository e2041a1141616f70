// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crs identifies coordinate reference systems by EPSG code and
// reprojects points between WGS 84, Web Mercator and the WGS 84 UTM zones.
package crs

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrUnsupported is returned for EPSG codes this package cannot transform.
var ErrUnsupported = errors.New("unsupported coordinate reference system")

const (
	epsgWGS84       = 4326
	epsgWebMercator = 3857
	epsgUTMNorth    = 32600
	epsgUTMSouth    = 32700
)

// CRS is a coordinate reference system identified by its EPSG code.
type CRS struct {
	EPSG int
}

var (
	WGS84       = CRS{EPSG: epsgWGS84}
	WebMercator = CRS{EPSG: epsgWebMercator}
)

// UTM returns the WGS 84 UTM CRS for zone (1-60) in the given hemisphere.
func UTM(zone int, north bool) CRS {
	if north {
		return CRS{EPSG: epsgUTMNorth + zone}
	}
	return CRS{EPSG: epsgUTMSouth + zone}
}

func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(c.EPSG)
}

// IsZero reports whether the CRS is unset.
func (c CRS) IsZero() bool { return c.EPSG == 0 }

// IsGeographic reports whether coordinates are degrees of longitude/latitude.
func (c CRS) IsGeographic() bool { return c.EPSG == epsgWGS84 }

// UTMZone returns the zone and hemisphere for a UTM CRS.
func (c CRS) UTMZone() (zone int, north bool, ok bool) {
	switch {
	case c.EPSG > epsgUTMNorth && c.EPSG <= epsgUTMNorth+60:
		return c.EPSG - epsgUTMNorth, true, true
	case c.EPSG > epsgUTMSouth && c.EPSG <= epsgUTMSouth+60:
		return c.EPSG - epsgUTMSouth, false, true
	}
	return 0, false, false
}

// Validate returns ErrUnsupported for codes Transform cannot handle.
func (c CRS) Validate() error {
	if c.EPSG == epsgWGS84 || c.EPSG == epsgWebMercator {
		return nil
	}
	if _, _, ok := c.UTMZone(); ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, c)
}

// Name is a human readable label used in manifests and the web UI.
func (c CRS) Name() string {
	switch c.EPSG {
	case epsgWGS84:
		return "WGS 84"
	case epsgWebMercator:
		return "WGS 84 / Pseudo-Mercator"
	}
	if zone, north, ok := c.UTMZone(); ok {
		return fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemisphereLetter(north))
	}
	return c.String()
}

var (
	epsgPattern = regexp.MustCompile(`^(?:EPSG\s*:?\s*)?(\d{4,5})$`)
	utmPattern  = regexp.MustCompile(`^UTM\s*(?:ZONE)?\s*(\d{1,2})\s*([NS])?$`)
)

// Parse accepts "EPSG:32633", "4326", "UTM 33N", "utm33s", "WGS84" and
// "webmercator". The result is validated.
func Parse(s string) (CRS, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	switch strings.NewReplacer(" ", "", "-", "", "_", "").Replace(norm) {
	case "WGS84", "LONLAT", "LATLON", "CRS84":
		return WGS84, nil
	case "WEBMERCATOR", "PSEUDOMERCATOR", "900913":
		return WebMercator, nil
	}

	var c CRS
	if m := epsgPattern.FindStringSubmatch(norm); m != nil {
		code, _ := strconv.Atoi(m[1])
		c = CRS{EPSG: code}
	} else if m := utmPattern.FindStringSubmatch(norm); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone < 1 || zone > 60 {
			return CRS{}, fmt.Errorf("%w: UTM zone %d", ErrUnsupported, zone)
		}
		c = UTM(zone, m[2] != "S")
	} else {
		return CRS{}, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}

	if err := c.Validate(); err != nil {
		return CRS{}, err
	}
	return c, nil
}

// ZoneFor returns the UTM CRS covering a WGS 84 position, including the
// Norway and Svalbard exceptions.
func ZoneFor(lon, lat float64) CRS {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}

	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		zone = 32
	}
	if lat >= 72 && lat < 84 {
		switch {
		case lon >= 0 && lon < 9:
			zone = 31
		case lon >= 9 && lon < 21:
			zone = 33
		case lon >= 21 && lon < 33:
			zone = 35
		case lon >= 33 && lon < 42:
			zone = 37
		}
	}
	return UTM(zone, lat >= 0)
}

// Projection returns an orb.Projection that maps points from one CRS to
// another through WGS 84.
func Projection(from, to CRS) (orb.Projection, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if from == to {
		return func(p orb.Point) orb.Point { return p }, nil
	}

	toGeo := toWGS84(from)
	fromGeo := fromWGS84(to)
	return func(p orb.Point) orb.Point {
		return fromGeo(toGeo(p))
	}, nil
}

// Transform reprojects a single point.
func Transform(p orb.Point, from, to CRS) (orb.Point, error) {
	proj, err := Projection(from, to)
	if err != nil {
		return orb.Point{}, err
	}
	return proj(p), nil
}

func toWGS84(c CRS) orb.Projection {
	switch c.EPSG {
	case epsgWGS84:
		return func(p orb.Point) orb.Point { return p }
	case epsgWebMercator:
		return project.Mercator.ToWGS84
	}
	zone, north, _ := c.UTMZone()
	return func(p orb.Point) orb.Point {
		lon, lat := utmInverse(p[0], p[1], zone, north)
		return orb.Point{lon, lat}
	}
}

func fromWGS84(c CRS) orb.Projection {
	switch c.EPSG {
	case epsgWGS84:
		return func(p orb.Point) orb.Point { return p }
	case epsgWebMercator:
		return project.WGS84.ToMercator
	}
	zone, north, _ := c.UTMZone()
	return func(p orb.Point) orb.Point {
		e, n := utmForward(p[0], p[1], zone, north)
		return orb.Point{e, n}
	}
}

func hemisphereLetter(north bool) string {
	if north {
		return "N"
	}
	return "S"
}
