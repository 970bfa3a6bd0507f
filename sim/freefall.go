package sim

import (
	"math"
	"math/rand"

	"github.com/westphae/quaternion"
)

// ParachuteFactor is the fraction of gravity a vehicle under a partly
// opened parachute still accelerates down with.
const ParachuteFactor = 0.5

// FreeFallParachute drops a level vehicle from startHeight above the origin
// with a constant downward acceleration of ParachuteFactor·g, sampling
// every sensor n times dt apart. g is the magnitude of gravity.
func FreeFallParachute(n int, dt, g, startHeight float64, v Variances, rng *rand.Rand) Scenario {
	in := &instruments{
		rng:         rng,
		noise:       v,
		origin:      DefaultOrigin,
		g:           g,
		mag:         DefaultMagField,
		accelRanges: []float64{math.Inf(1)},
		baros:       1,
		gpsEvery:    1,
	}

	a := g * ParachuteFactor
	sc := Scenario{Name: "parachute", DT: dt, G: g, Origin: DefaultOrigin}
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		tr := Truth{
			T:        t,
			Pos:      [3]float64{0, 0, -startHeight + a*t*t/2},
			Vel:      [3]float64{0, 0, a * t},
			Attitude: quaternion.Identity(),
		}
		sc.Truth = append(sc.Truth, tr)
		sc.Records = append(sc.Records, in.record(i, tr, [3]float64{0, 0, a}))
	}
	return sc
}
