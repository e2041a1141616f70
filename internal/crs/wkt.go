// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crs

import "fmt"

const geogcsWGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// WKT returns the ESRI well-known text written to a shapefile's .prj.
func (c CRS) WKT() (string, error) {
	switch c.EPSG {
	case epsgWGS84:
		return geogcsWGS84, nil
	case epsgWebMercator:
		return `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",` + geogcsWGS84 +
			`,PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],` +
			`PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",0.0],` +
			`PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`, nil
	}

	zone, north, ok := c.UTMZone()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, c)
	}
	fn := 0.0
	if !north {
		fn = falseNorthing
	}
	return fmt.Sprintf(`PROJCS["WGS_1984_UTM_Zone_%d%s",%s,PROJECTION["Transverse_Mercator"],`+
		`PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",%.1f],`+
		`PARAMETER["Central_Meridian",%.1f],PARAMETER["Scale_Factor",0.9996],`+
		`PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`,
		zone, hemisphereLetter(north), geogcsWGS84, fn, centralMeridian(zone)), nil
}
