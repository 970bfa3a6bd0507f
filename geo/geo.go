// Package geo converts between WGS84 geodetic, earth-centered earth-fixed
// (ECEF) and local north-east-down (NED) coordinates, and provides the
// great-circle, barometric and geomagnetic helpers the navigation filter
// needs. Angles are in degrees and lengths in meters throughout.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/wroge/wgs84"
)

var (
	toECEF   = wgs84.To(wgs84.XYZ())
	fromECEF = wgs84.From(wgs84.XYZ())
)

// GeodeticToECEF returns the ECEF coordinates of a WGS84 position.
func GeodeticToECEF(lat, lon, alt float64) (x, y, z float64) {
	return toECEF(lon, lat, alt)
}

// ECEFToGeodetic returns the WGS84 position of an ECEF point.
func ECEFToGeodetic(x, y, z float64) (lat, lon, alt float64) {
	lon, lat, alt = fromECEF(x, y, z)
	return lat, lon, alt
}

// Origin is the tangent point of a local NED frame.
type Origin struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
	Alt float64 `yaml:"alt" json:"alt"`
}

// rotation returns the ECEF→NED rotation matrix at o.
func (o Origin) rotation() [3][3]float64 {
	sLat, cLat := math.Sincos(o.Lat * math.Pi / 180)
	sLon, cLon := math.Sincos(o.Lon * math.Pi / 180)
	return [3][3]float64{
		{-sLat * cLon, -sLat * sLon, cLat},
		{-sLon, cLon, 0},
		{-cLat * cLon, -cLat * sLon, -sLat},
	}
}

// ECEFToNED returns the NED offset of an ECEF point from o.
func (o Origin) ECEFToNED(x, y, z float64) (ned [3]float64) {
	x0, y0, z0 := GeodeticToECEF(o.Lat, o.Lon, o.Alt)
	d := [3]float64{x - x0, y - y0, z - z0}
	r := o.rotation()
	for i := 0; i < 3; i++ {
		ned[i] = r[i][0]*d[0] + r[i][1]*d[1] + r[i][2]*d[2]
	}
	return ned
}

// NEDToECEF returns the ECEF point at the NED offset ned from o.
func (o Origin) NEDToECEF(ned [3]float64) (x, y, z float64) {
	x, y, z = GeodeticToECEF(o.Lat, o.Lon, o.Alt)
	r := o.rotation()
	x += r[0][0]*ned[0] + r[1][0]*ned[1] + r[2][0]*ned[2]
	y += r[0][1]*ned[0] + r[1][1]*ned[1] + r[2][1]*ned[2]
	z += r[0][2]*ned[0] + r[1][2]*ned[1] + r[2][2]*ned[2]
	return
}

// ToNED returns the NED offset of a WGS84 position from o.
func (o Origin) ToNED(lat, lon, alt float64) [3]float64 {
	return o.ECEFToNED(GeodeticToECEF(lat, lon, alt))
}

// ToGeodetic returns the WGS84 position at the NED offset ned from o.
func (o Origin) ToGeodetic(ned [3]float64) (lat, lon, alt float64) {
	return ECEFToGeodetic(o.NEDToECEF(ned))
}

// Distance returns the haversine great-circle distance between two
// positions.
func Distance(lat0, lon0, lat1, lon1 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lon0, lat0}, orb.Point{lon1, lat1})
}

// Bearing returns the initial great-circle course from the first position
// to the second, in [0, 360).
func Bearing(lat0, lon0, lat1, lon1 float64) float64 {
	b := orbgeo.Bearing(orb.Point{lon0, lat0}, orb.Point{lon1, lat1})
	if b < 0 {
		b += 360
	}
	return b
}
