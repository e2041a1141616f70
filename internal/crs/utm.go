// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crs

import "math"

// WGS 84 ellipsoid and UTM constants.
const (
	semiMajor     = 6378137.0
	flattening    = 1 / 298.257223563
	scaleFactor   = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

var (
	ecc2  = flattening * (2 - flattening)
	ecc4  = ecc2 * ecc2
	ecc6  = ecc4 * ecc2
	eccP2 = ecc2 / (1 - ecc2)
)

func centralMeridian(zone int) float64 {
	return float64(zone-1)*6 - 180 + 3
}

func meridianArc(phi float64) float64 {
	return semiMajor * ((1-ecc2/4-3*ecc4/64-5*ecc6/256)*phi -
		(3*ecc2/8+3*ecc4/32+45*ecc6/1024)*math.Sin(2*phi) +
		(15*ecc4/256+45*ecc6/1024)*math.Sin(4*phi) -
		(35*ecc6/3072)*math.Sin(6*phi))
}

// utmForward converts degrees to easting/northing in metres using the
// transverse Mercator series expansion (Snyder, USGS PP 1395, p. 61).
func utmForward(lon, lat float64, zone int, north bool) (easting, northing float64) {
	phi := lat * math.Pi / 180
	dLambda := (lon - centralMeridian(zone)) * math.Pi / 180

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	n := semiMajor / math.Sqrt(1-ecc2*sinPhi*sinPhi)
	t := math.Tan(phi) * math.Tan(phi)
	c := eccP2 * cosPhi * cosPhi
	a := cosPhi * dLambda
	m := meridianArc(phi)

	easting = scaleFactor*n*(a+
		(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*eccP2)*math.Pow(a, 5)/120) + falseEasting

	northing = scaleFactor * (m + n*math.Tan(phi)*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*eccP2)*math.Pow(a, 6)/720))
	if !north {
		northing += falseNorthing
	}
	return easting, northing
}

// utmInverse converts easting/northing in metres back to degrees.
func utmInverse(easting, northing float64, zone int, north bool) (lon, lat float64) {
	x := easting - falseEasting
	y := northing
	if !north {
		y -= falseNorthing
	}

	m := y / scaleFactor
	mu := m / (semiMajor * (1 - ecc2/4 - 3*ecc4/64 - 5*ecc6/256))

	e1 := (1 - math.Sqrt(1-ecc2)) / (1 + math.Sqrt(1-ecc2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	n1 := semiMajor / math.Sqrt(1-ecc2*sinPhi1*sinPhi1)
	t1 := math.Tan(phi1) * math.Tan(phi1)
	c1 := eccP2 * cosPhi1 * cosPhi1
	r1 := semiMajor * (1 - ecc2) / math.Pow(1-ecc2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * scaleFactor)

	phi := phi1 - (n1*math.Tan(phi1)/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*eccP2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*eccP2-3*c1*c1)*math.Pow(d, 6)/720)

	lambda := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*eccP2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	return centralMeridian(zone) + lambda*180/math.Pi, phi * 180 / math.Pi
}
