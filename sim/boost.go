package sim

import (
	"math"
	"math/rand"

	"github.com/westphae/quaternion"
)

// BoostConfig describes a vertical rocket flight: a rest on the pad, a
// constant-thrust burn, a ballistic coast to apogee, a descent under
// parachute and a rest after touchdown.
type BoostConfig struct {
	DT          float64    `yaml:"dt"`
	G           float64    `yaml:"gravity"`
	PadTime     float64    `yaml:"pad_time"`     // s on the pad before ignition
	BurnTime    float64    `yaml:"burn_time"`    // s
	Thrust      float64    `yaml:"thrust"`       // Upward kinematic acceleration during the burn, m/s²
	DescentRate float64    `yaml:"descent_rate"` // Terminal speed under parachute, m/s
	ImpactDecel float64    `yaml:"impact_decel"` // Deceleration at touchdown, m/s²; 0 stops in one step
	LandedTime  float64    `yaml:"landed_time"`  // s recorded after touchdown
	GPSEvery    int        `yaml:"gps_every"`
	IMURanges   []float64  `yaml:"imu_ranges"` // Full-scale range of each IMU, m/s²
	Baros       int        `yaml:"baros"`
	MagField    [3]float64 `yaml:"mag_field"` // Earth-frame field; zero uses DefaultMagField
	Noise       Variances  `yaml:"noise"`
}

// DefaultBoostConfig flies to about 590 m with a 5 g burn and lands with a
// 10 g impact. The second IMU has a 4 g range and saturates during the burn
// and at touchdown. The magnetic field dips 60° below north.
func DefaultBoostConfig() BoostConfig {
	const g = 9.80665
	return BoostConfig{
		DT:          0.01,
		G:           g,
		PadTime:     1,
		BurnTime:    2,
		Thrust:      5 * g,
		DescentRate: 15,
		ImpactDecel: 10 * g,
		LandedTime:  3,
		GPSEvery:    10,
		IMURanges:   []float64{16 * g, 4 * g},
		Baros:       2,
		MagField:    [3]float64{0.5 * math.Cos(math.Pi/3), 0, 0.5 * math.Sin(math.Pi/3)},
		Noise:       DefaultVariances(),
	}
}

// Stage of a boosted flight.
type Stage int

const (
	StagePad Stage = iota
	StageBurn
	StageCoast
	StageChute
	StageLanded
)

var stageNames = [...]string{"pad", "burn", "coast", "chute", "landed"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// BoostedFlight generates a boosted flight from cfg. The returned stages
// are parallel to the records.
func BoostedFlight(cfg BoostConfig, rng *rand.Rand) (Scenario, []Stage) {
	in := &instruments{
		rng:         rng,
		noise:       cfg.Noise,
		origin:      DefaultOrigin,
		g:           cfg.G,
		mag:         DefaultMagField,
		accelRanges: cfg.IMURanges,
		baros:       cfg.Baros,
		gpsEvery:    cfg.GPSEvery,
	}
	if len(in.accelRanges) == 0 {
		in.accelRanges = []float64{math.Inf(1)}
	}
	if cfg.MagField != [3]float64{} {
		in.mag = cfg.MagField
	}

	sc := Scenario{Name: "boost", DT: cfg.DT, G: cfg.G, Origin: DefaultOrigin}
	if cfg.DT <= 0 {
		return sc, nil
	}
	decel := cfg.ImpactDecel
	if decel <= 0 {
		decel = math.Inf(1)
	}
	var (
		stages  []Stage
		pos     [3]float64
		vel     [3]float64
		stage   = StagePad
		landedT float64
		impact  bool
	)
	for i := 0; ; i++ {
		t := float64(i) * cfg.DT

		switch {
		case stage == StagePad && t >= cfg.PadTime:
			stage = StageBurn
		case stage == StageBurn && t >= cfg.PadTime+cfg.BurnTime:
			stage = StageCoast
		case stage == StageCoast && vel[2] >= 0:
			stage = StageChute
		case stage == StageChute && impact && vel[2] <= 1e-9:
			stage, landedT = StageLanded, t
			pos[2], vel[2] = 0, 0
		}

		var acc [3]float64
		switch stage {
		case StageBurn:
			acc[2] = -cfg.Thrust
		case StageCoast:
			acc[2] = cfg.G
		case StageChute:
			// Brake to a stop just above the ground
			if !impact && -pos[2] <= vel[2]*vel[2]/(2*decel)+2*vel[2]*cfg.DT {
				impact = true
			}
			switch {
			case impact:
				acc[2] = -math.Min(decel, vel[2]/cfg.DT)
			case vel[2] < cfg.DescentRate:
				// Fall at half g until the canopy holds the descent rate
				acc[2] = math.Min(cfg.G*ParachuteFactor, (cfg.DescentRate-vel[2])/cfg.DT)
			}
		}

		// Ground contact ends any descent the impact did not stop
		if stage == StageChute && pos[2]+vel[2]*cfg.DT+acc[2]*cfg.DT*cfg.DT/2 >= 0 {
			stage, landedT = StageLanded, t
			pos[2], vel[2], acc[2] = 0, 0, 0
		}
		if stage == StageLanded && t-landedT >= cfg.LandedTime {
			break
		}

		tr := Truth{T: t, Pos: pos, Vel: vel, Attitude: quaternion.Identity()}
		sc.Truth = append(sc.Truth, tr)
		sc.Records = append(sc.Records, in.record(i, tr, acc))
		stages = append(stages, stage)

		for j := 0; j < 3; j++ {
			pos[j] += vel[j]*cfg.DT + acc[j]*cfg.DT*cfg.DT/2
			vel[j] += acc[j] * cfg.DT
		}
	}
	return sc, stages
}
