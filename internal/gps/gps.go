// Package gps converts geodetic coordinates on the WGS84 ellipsoid to and
// from Earth-centered Cartesian coordinates. The spatial matching strategy
// uses it to turn latitude/longitude/altitude priors into metric positions.
package gps

import "math"

// WGS84 ellipsoid parameters.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
)

var eccSquared = flattening * (2 - flattening)

// Ell is a geodetic position: latitude and longitude in degrees, altitude in
// meters above the ellipsoid.
type Ell struct {
	Lat float64
	Lon float64
	Alt float64
}

// XYZ is an Earth-centered, Earth-fixed Cartesian position in meters.
type XYZ struct {
	X float64
	Y float64
	Z float64
}

// EllToXYZ converts a geodetic position to ECEF Cartesian coordinates.
func EllToXYZ(ell Ell) XYZ {
	lat := ell.Lat * math.Pi / 180
	lon := ell.Lon * math.Pi / 180

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := semiMajorAxis / math.Sqrt(1-eccSquared*sinLat*sinLat)

	return XYZ{
		X: (n + ell.Alt) * cosLat * math.Cos(lon),
		Y: (n + ell.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-eccSquared) + ell.Alt) * sinLat,
	}
}

// XYZToEll converts an ECEF Cartesian position back to geodetic coordinates
// by fixed-point iteration on latitude and altitude.
func XYZToEll(xyz XYZ) Ell {
	lon := math.Atan2(xyz.Y, xyz.X)
	p := math.Hypot(xyz.X, xyz.Y)

	lat := math.Atan2(xyz.Z, p*(1-eccSquared))
	var n, alt float64
	for i := 0; i < 100; i++ {
		sinLat := math.Sin(lat)
		n = semiMajorAxis / math.Sqrt(1-eccSquared*sinLat*sinLat)
		prevAlt := alt
		prevLat := lat
		alt = p/math.Cos(lat) - n
		lat = math.Atan2(xyz.Z, p*(1-eccSquared*n/(n+alt)))
		if math.Abs(lat-prevLat) < 1e-14 && math.Abs(alt-prevAlt) < 1e-8 {
			break
		}
	}

	return Ell{
		Lat: lat * 180 / math.Pi,
		Lon: lon * 180 / math.Pi,
		Alt: alt,
	}
}
