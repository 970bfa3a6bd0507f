package flight

import (
	"math"

	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
)

// Scheduler turns sensor readings that arrive at their own rates into one
// record per fixed tick. It keeps the latest reading of each channel. The
// inertial channels are repeated on every tick; GPS, barometer and
// magnetometer are marked valid only on the first tick after a new reading
// arrived. Readings older than the last emitted tick are dropped, never
// reordered.
type Scheduler struct {
	dt   float64
	next float64 // Time of the next tick
	init bool

	accel, gyro [][3]float64
	gps         sensors.Fix
	pressure    []float64
	mag         [3]float64

	freshGPS, freshBaro, freshMag bool
	dropped                       int
}

// NewScheduler returns a Scheduler ticking every dt seconds, starting at the
// time of the first reading.
func NewScheduler(dt float64) *Scheduler {
	return &Scheduler{dt: dt}
}

// Dropped returns the number of readings rejected as late.
func (s *Scheduler) Dropped() int {
	return s.dropped
}

// Push buffers every channel present in r. It reports false if r is older
// than the last emitted tick.
func (s *Scheduler) Push(r sensors.Record) bool {
	if !s.init {
		s.next = r.T
		s.init = true
	}
	if r.T < s.next-s.dt-1e-9 {
		s.dropped++
		return false
	}
	if len(r.Accel) > 0 {
		s.accel = append(s.accel[:0], r.Accel...)
	}
	if len(r.Gyro) > 0 {
		s.gyro = append(s.gyro[:0], r.Gyro...)
	}
	if r.GPSValid {
		s.gps, s.freshGPS = r.GPS, true
	}
	if r.BaroValid {
		s.pressure, s.freshBaro = append(s.pressure[:0], r.Pressure...), true
	}
	if r.MagValid {
		s.mag, s.freshMag = r.Mag, true
	}
	return true
}

// Due returns a record for every tick at or before now, in time order.
func (s *Scheduler) Due(now float64) (recs []sensors.Record) {
	if !s.init || s.dt <= 0 || math.IsNaN(now) {
		return nil
	}
	for s.next <= now+1e-9 {
		r := sensors.Record{
			T:     s.next,
			Accel: append([][3]float64(nil), s.accel...),
			Gyro:  append([][3]float64(nil), s.gyro...),
		}
		if s.freshGPS {
			r.GPS, r.GPSValid = s.gps, true
		}
		if s.freshBaro {
			r.Pressure, r.BaroValid = append([]float64(nil), s.pressure...), true
		}
		if s.freshMag {
			r.Mag, r.MagValid = s.mag, true
		}
		s.freshGPS, s.freshBaro, s.freshMag = false, false, false
		recs = append(recs, r)
		s.next += s.dt
	}
	return recs
}
