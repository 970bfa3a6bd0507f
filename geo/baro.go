package geo

import "math"

// SeaLevelPressure is the standard atmosphere pressure at sea level, Pa.
const SeaLevelPressure = 101325.0

// BaroAltitude returns the standard-atmosphere altitude for a static
// pressure in Pa.
func BaroAltitude(p float64) float64 {
	return 44330.76923 * (1 - math.Pow(p/SeaLevelPressure, 0.1902632))
}

// BaroPressure is the inverse of BaroAltitude.
func BaroPressure(alt float64) float64 {
	return SeaLevelPressure * math.Pow(1-alt/44330.76923, 1/0.1902632)
}
