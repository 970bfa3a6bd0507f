// Package sim generates synthetic sensor records, with the true trajectory
// that produced them, for exercising the navigation filter.
//
// The earth frame is NED about Origin and the vehicle keeps a level,
// north-facing attitude, so body and earth axes coincide. Accelerometers
// measure specific force: a level vehicle at rest reads -g on its down axis.
package sim

import (
	"math"
	"math/rand"

	"github.com/westphae/quaternion"

	"github.com/RocketScienceOfficial/rocket-nav-lib/geo"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
)

// Variances of the Gaussian noise added to each sensor channel. Baro noise
// is in m² of altitude, GPS noise in m² per NED axis.
type Variances struct {
	Accel float64 `yaml:"accel"`
	Gyro  float64 `yaml:"gyro"`
	GPS   float64 `yaml:"gps"`
	Baro  float64 `yaml:"baro"`
	Mag   float64 `yaml:"mag"`
}

// DefaultVariances are the noise levels of the parachute scenario.
func DefaultVariances() Variances {
	return Variances{Accel: 0.1, Gyro: 0.1, GPS: 1, Baro: 0.5, Mag: 0.3}
}

// Truth is the true vehicle state at one step.
type Truth struct {
	T        float64               `json:"t"`
	Pos      [3]float64            `json:"pos"` // NED, m
	Vel      [3]float64            `json:"vel"` // NED, m/s
	Attitude quaternion.Quaternion `json:"attitude"`
}

// Altitude returns the true height above the origin.
func (t Truth) Altitude() float64 {
	return -t.Pos[2]
}

// Scenario is a generated run.
type Scenario struct {
	Name    string
	DT      float64
	G       float64
	Origin  geo.Origin
	Records []sensors.Record
	Truth   []Truth
}

// DefaultOrigin is the launch site the scenarios fly from.
var DefaultOrigin = geo.Origin{Lat: 32.951805, Lon: -106.915802, Alt: 137.073196}

// DefaultMagField is the earth-frame magnetic field the scenarios use.
var DefaultMagField = [3]float64{0.5, 0, 0}

// instruments turns true kinematics into noisy sensor records.
type instruments struct {
	rng    *rand.Rand
	noise  Variances
	origin geo.Origin
	g      float64
	mag    [3]float64

	accelRanges []float64 // One per IMU, m/s²; readings clip at ±range
	baros       int
	gpsEvery    int // A GPS fix every gpsEvery steps
}

func (in *instruments) gauss(variance float64) float64 {
	if variance <= 0 {
		return 0
	}
	return in.rng.NormFloat64() * math.Sqrt(variance)
}

// record samples every sensor at step i for a vehicle at rest attitude with
// true NED kinematic acceleration acc.
func (in *instruments) record(i int, tr Truth, acc [3]float64) sensors.Record {
	r := sensors.Record{T: tr.T}

	// Specific force = kinematic acceleration - gravity
	f := [3]float64{acc[0], acc[1], acc[2] - in.g}
	for _, limit := range in.accelRanges {
		var a, w [3]float64
		for j := 0; j < 3; j++ {
			a[j] = clip(f[j]+in.gauss(in.noise.Accel), limit)
			w[j] = in.gauss(in.noise.Gyro)
		}
		r.Accel = append(r.Accel, a)
		r.Gyro = append(r.Gyro, w)
	}

	for j := 0; j < 3; j++ {
		r.Mag[j] = in.mag[j] + in.gauss(in.noise.Mag)
	}
	r.MagValid = true

	if in.gpsEvery <= 1 || i%in.gpsEvery == 0 {
		ned := tr.Pos
		for j := 0; j < 3; j++ {
			ned[j] += in.gauss(in.noise.GPS)
		}
		lat, lon, alt := in.origin.ToGeodetic(ned)
		r.GPS = sensors.Fix{Lat: lat, Lon: lon, Alt: alt}
		r.GPSValid = true
	}

	for b := 0; b < in.baros; b++ {
		h := in.origin.Alt + tr.Altitude() + in.gauss(in.noise.Baro)
		r.Pressure = append(r.Pressure, geo.BaroPressure(h))
	}
	r.BaroValid = in.baros > 0
	return r
}

func clip(v, limit float64) float64 {
	if limit <= 0 || math.IsInf(limit, 1) {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}
