// Package sensors defines the per-step sensor record consumed by the
// navigation filter, and the readers that produce records from CSV logs,
// serial telemetry and the barometer driver.
package sensors

import (
	"time"
)

// PressureSensor is implemented by barometer drivers that publish readings
// on channels.
type PressureSensor struct {
	C    <-chan *BMPData // Latest reading
	CBuf <-chan *BMPData // Buffered readings
}

// BMPData is one barometer reading.
type BMPData struct {
	Temperature float64       // deg C
	Pressure    float64       // Pa
	T           time.Duration // Since the driver started
}

// Fix is a GPS position.
type Fix struct {
	Lat float64 `json:"lat"` // deg
	Lon float64 `json:"lon"` // deg
	Alt float64 `json:"alt"` // m above the ellipsoid
}

// Record holds every sensor reading for one time step.
// Accel and Gyro have one entry per redundant IMU, Pressure one entry per
// redundant barometer. A group whose Valid flag is false carries no usable
// reading for this step.
type Record struct {
	T float64 // s

	Accel [][3]float64 // Body-frame specific force, m/s²
	Gyro  [][3]float64 // Body-frame angular rate, rad/s

	Mag      [3]float64 // Body-frame magnetic field
	MagValid bool

	GPS      Fix
	GPSValid bool

	Pressure  []float64 // Pa
	BaroValid bool
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.Accel = append([][3]float64(nil), r.Accel...)
	c.Gyro = append([][3]float64(nil), r.Gyro...)
	c.Pressure = append([]float64(nil), r.Pressure...)
	return c
}
