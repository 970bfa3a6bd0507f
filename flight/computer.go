// Package flight runs the flight computer: each step votes the redundant
// inertial and barometric sensors, predicts and corrects the navigation
// filter and classifies the flight phase from the estimate.
package flight

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/westphae/quaternion"

	"github.com/RocketScienceOfficial/rocket-nav-lib/ahrs"
	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/ekf"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
	"github.com/RocketScienceOfficial/rocket-nav-lib/geo"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
	"github.com/RocketScienceOfficial/rocket-nav-lib/voting"
)

// InnovationDecay is the decay constant of the per-channel innovation
// statistics, about 200 steps.
const InnovationDecay = 0.995

var (
	navChannelNames = [ahrs.NavChannels]string{"gps_n", "gps_e", "gps_d", "baro_d", "mag_x", "mag_y", "mag_z"}
	altChannelNames = [ahrs.AltChannels]string{"gps_alt", "baro_alt"}
)

// Output is the result of one Step.
type Output struct {
	T         float64
	Nav       ahrs.NavState // Full model only
	Altitude  float64       // m above the origin
	ClimbRate float64       // m/s, full model only
	Variances []float64     // Diagonal of P
	Accel     [3]float64    // Fused specific force, body frame, m/s²
	Gyro      [3]float64    // Fused rates, body frame, rad/s
	Phase     flightphase.Phase
	Event     *flightphase.Event
	// CorrectErr is set when the correction was numerically singular;
	// the estimate is then the prediction alone.
	CorrectErr error
}

// Checkpoint is the filter and phase-machine state after a step.
// It is for telemetry and logging; nothing restores from it.
type Checkpoint struct {
	Filter ekf.Snapshot         `json:"filter"`
	Phase  flightphase.Snapshot `json:"phase"`
}

// ChannelStats summarizes the recent innovations of one measurement channel.
type ChannelStats struct {
	Name     string
	N        float64
	Mean     float64
	Variance float64
}

type Option func(*Computer)

// WithMagTable seeds the magnetic reference from a geomagnetic table at the
// origin instead of from the first magnetometer reading.
func WithMagTable(t *geo.MagTable) Option {
	return func(c *Computer) {
		c.magTable = t
	}
}

// WithRegistry registers the computer's metrics in r.
func WithRegistry(r metrics.Registry) Option {
	return func(c *Computer) {
		c.registry = r
	}
}

type counters struct {
	steps      metrics.Counter
	predicts   metrics.Counter
	corrects   metrics.Counter
	singular   metrics.Counter
	heldAxes   metrics.Counter
	baroMisses metrics.Counter
	events     metrics.Counter
	step       metrics.Timer
	innovMean  []metrics.GaugeFloat64
	innovVar   []metrics.GaugeFloat64
}

// Computer is one vehicle's flight computer. It is not safe for concurrent use.
type Computer struct {
	cfg  config.Config
	full bool

	accel, gyro, baro *voting.Voter

	kf      *ekf.Filter
	opts    []ekf.Option
	pm      ekf.ProcessModel
	om      ekf.ObservationModel
	machine *flightphase.Machine

	origin     geo.Origin
	haveOrigin bool
	magTable   *geo.MagTable

	started  bool
	baroRef  float64 // Barometric altitude of the origin
	haveBaro bool

	lastAccel, lastGyro [3]float64
	lastGPS, lastBaro   float64
	lastMag             float64

	names []string
	innov []*ahrs.VarianceAccumulator

	registry metrics.Registry
	m        counters
}

// New builds a Computer from cfg. Every configuration error surfaces here,
// before the first Step.
func New(cfg config.Config, opts ...Option) (c *Computer, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c = &Computer{cfg: cfg, full: cfg.Filter.Model == config.ModelFull}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = metrics.NewRegistry()
	}

	if c.accel, err = voting.New(cfg.Voting.Accel.Thresholds, cfg.Voting.Accel.Variances); err != nil {
		return nil, fmt.Errorf("flight: accel voter: %w", err)
	}
	if c.gyro, err = voting.New(cfg.Voting.Gyro.Thresholds, cfg.Voting.Gyro.Variances); err != nil {
		return nil, fmt.Errorf("flight: gyro voter: %w", err)
	}
	if c.baro, err = voting.New(cfg.Voting.Baro.Thresholds, cfg.Voting.Baro.Variances); err != nil {
		return nil, fmt.Errorf("flight: baro voter: %w", err)
	}
	if c.machine, err = flightphase.New(cfg.Phase); err != nil {
		return nil, fmt.Errorf("flight: %w", err)
	}

	// A configured origin also fixes the barometric reference; otherwise the
	// first barometric reading is taken at the current estimate.
	if !cfg.Origin.Auto {
		c.origin = geo.Origin{Lat: cfg.Origin.Lat, Lon: cfg.Origin.Lon, Alt: cfg.Origin.Alt}
		c.haveOrigin = true
		c.baroRef, c.haveBaro = cfg.Origin.Alt, true
	}

	var x0 []float64
	if c.full {
		c.pm, c.om = ahrs.NavModel{}, ahrs.NavObservation{}
		x0 = ahrs.NavState{Attitude: quaternion.Identity()}.Vector()
		if cfg.Filter.RenormalizeQuaternion {
			c.opts = append(c.opts, ekf.WithConstraint(ahrs.NormalizeAttitude))
		}
		c.names = navChannelNames[:]
	} else {
		c.pm, c.om = ahrs.AltitudeModel{}, ahrs.AltitudeObservation{}
		x0 = []float64{0}
		c.names = altChannelNames[:]
	}
	if err := c.reset(x0); err != nil {
		return nil, err
	}

	c.lastGPS, c.lastBaro, c.lastMag = math.Inf(-1), math.Inf(-1), math.Inf(-1)
	c.innov = make([]*ahrs.VarianceAccumulator, len(c.names))
	for i := range c.innov {
		c.innov[i] = ahrs.NewVarianceAccumulator(0, InnovationDecay)
	}
	c.registerMetrics()
	return c, nil
}

func (c *Computer) registerMetrics() {
	r := c.registry
	c.m = counters{
		steps:      metrics.NewRegisteredCounter("flight.steps", r),
		predicts:   metrics.NewRegisteredCounter("flight.predicts", r),
		corrects:   metrics.NewRegisteredCounter("flight.corrections", r),
		singular:   metrics.NewRegisteredCounter("flight.corrections.singular", r),
		heldAxes:   metrics.NewRegisteredCounter("flight.axes.held", r),
		baroMisses: metrics.NewRegisteredCounter("flight.baro.held", r),
		events:     metrics.NewRegisteredCounter("flight.events", r),
		step:       metrics.NewRegisteredTimer("flight.step", r),
	}
	for _, n := range c.names {
		c.m.innovMean = append(c.m.innovMean, metrics.NewRegisteredGaugeFloat64("flight.innovation."+n+".mean", r))
		c.m.innovVar = append(c.m.innovVar, metrics.NewRegisteredGaugeFloat64("flight.innovation."+n+".var", r))
	}
}

// reset replaces the filter with one starting at x0 and checks the models
// against it.
func (c *Computer) reset(x0 []float64) error {
	kf, err := ekf.NewFilter(x0, c.cfg.Filter.P0, c.cfg.Filter.DT, c.cfg.Filter.Gravity, c.opts...)
	if err != nil {
		return fmt.Errorf("flight: %w", err)
	}
	if err := ekf.Verify(kf, c.control(), c.pm, c.processNoise(c.cfg.Noise.Accel, c.cfg.Noise.Gyro),
		c.om, c.measurementNoise(c.cfg.Noise.Baro)); err != nil {
		return fmt.Errorf("flight: %w", err)
	}
	c.kf = kf
	return nil
}

func (c *Computer) control() []float64 {
	if !c.full {
		return nil
	}
	return []float64{
		c.lastAccel[0], c.lastAccel[1], c.lastAccel[2],
		c.lastGyro[0], c.lastGyro[1], c.lastGyro[2],
	}
}

func (c *Computer) processNoise(acc, gyr float64) []float64 {
	if !c.full {
		return []float64{c.cfg.Noise.ProcessAltitude}
	}
	return []float64{acc, gyr}
}

func (c *Computer) measurementNoise(baro float64) []float64 {
	if !c.full {
		return []float64{c.cfg.Noise.GPS, baro}
	}
	return []float64{c.cfg.Noise.GPS, baro, c.cfg.Noise.Mag}
}

// Origin returns the NED origin and whether it is known yet.
func (c *Computer) Origin() (geo.Origin, bool) {
	return c.origin, c.haveOrigin
}

// Registry returns the metrics registry of the computer.
func (c *Computer) Registry() metrics.Registry {
	return c.registry
}

// Phase returns the current flight phase.
func (c *Computer) Phase() flightphase.Phase {
	return c.machine.Phase()
}

// Checkpoint returns the state after the last step.
func (c *Computer) Checkpoint() Checkpoint {
	return Checkpoint{Filter: c.kf.Snapshot(), Phase: c.machine.Snapshot()}
}

// InnovationStats returns the running innovation statistics per channel.
func (c *Computer) InnovationStats() []ChannelStats {
	out := make([]ChannelStats, len(c.names))
	for i, a := range c.innov {
		out[i] = ChannelStats{Name: c.names[i], N: a.N(), Mean: a.Mean(), Variance: a.Variance()}
	}
	return out
}

// altitude returns the estimated height above the origin.
func (c *Computer) altitude() float64 {
	x := c.kf.State()
	if c.full {
		return -x[ahrs.IdxPosD]
	}
	return x[0]
}

// voteAxes fuses one redundant triaxial group. An axis with no usable
// reading keeps its previous value and reports the fallback variance.
func (c *Computer) voteAxes(v *voting.Voter, readings [][3]float64, last *[3]float64, fallback float64) (variance float64, ok bool, err error) {
	if len(readings) == 0 {
		c.m.heldAxes.Inc(3)
		return fallback, false, nil
	}
	res, err := v.VoteAxes(readings)
	if err != nil {
		return 0, false, err
	}
	for j, r := range res {
		if !r.Valid() {
			c.m.heldAxes.Inc(1)
			variance = math.Max(variance, fallback)
			continue
		}
		last[j] = r.Value
		variance = math.Max(variance, r.Variance)
		ok = true
	}
	return variance, ok, nil
}

// voteBaro converts pressures to altitudes and fuses them.
func (c *Computer) voteBaro(rec sensors.Record) (voting.Result, error) {
	if !rec.BaroValid || len(rec.Pressure) == 0 {
		return voting.Result{}, nil
	}
	alts := make([]float64, len(rec.Pressure))
	for i, p := range rec.Pressure {
		if p > 0 {
			alts[i] = geo.BaroAltitude(p)
		} else {
			alts[i] = math.NaN()
		}
	}
	res, err := c.baro.Vote(alts)
	if err != nil {
		return res, err
	}
	if !res.Valid() {
		c.m.baroMisses.Inc(1)
	}
	return res, nil
}

// due reports whether a channel last corrected at *last may be corrected at
// t, and records t if so.
func due(last *float64, period, t float64) bool {
	if period > 0 && t-*last < period-1e-9 {
		return false
	}
	*last = t
	return true
}

// adoptOrigin takes the first GPS fix as the origin when none is configured.
func (c *Computer) adoptOrigin(rec sensors.Record) {
	if c.haveOrigin || !rec.GPSValid {
		return
	}
	if math.IsNaN(rec.GPS.Lat) || math.IsNaN(rec.GPS.Lon) || math.IsNaN(rec.GPS.Alt) {
		log.Printf("flight: ignoring fix at t=%.3f s as origin: %v, %v\n", rec.T, rec.GPS.Lat, rec.GPS.Lon)
		return
	}
	c.origin = geo.Origin{Lat: rec.GPS.Lat, Lon: rec.GPS.Lon, Alt: rec.GPS.Alt}
	c.haveOrigin = true
	log.Printf("flight: origin set from fix at t=%.3f s: %.6f, %.6f, %.1f m\n",
		rec.T, c.origin.Lat, c.origin.Lon, c.origin.Alt)
}

// start seeds the filter from the first record.
func (c *Computer) start(rec sensors.Record, accelOK bool) error {
	c.adoptOrigin(rec)

	var pos [3]float64
	if rec.GPSValid && c.haveOrigin {
		pos = c.origin.ToNED(rec.GPS.Lat, rec.GPS.Lon, rec.GPS.Alt)
	}

	if !c.full {
		return c.reset([]float64{-pos[2]})
	}

	s := ahrs.NavState{Attitude: quaternion.Identity()}
	if rec.MagValid {
		s.Mag = rec.Mag
	}
	if c.cfg.Filter.InitAttitude && accelOK {
		s0, err := ahrs.InitialNavState(c.lastAccel, s.Mag)
		if err != nil {
			log.Printf("flight: keeping level attitude: %v\n", err)
		} else {
			s = s0
		}
	}
	if c.magTable != nil && c.haveOrigin {
		f := c.magTable.Field(c.origin.Lat, c.origin.Lon)
		if math.IsNaN(f[0]) || math.IsNaN(f[1]) || math.IsNaN(f[2]) {
			log.Printf("flight: no magnetic table field at %v, %v\n", c.origin.Lat, c.origin.Lon)
		} else {
			for i := range f {
				s.Mag[i] = f[i] * c.cfg.Filter.MagScale
			}
		}
	}
	s.Pos = pos
	return c.reset(s.Vector())
}

// Step runs one fixed-rate cycle on rec: vote, predict, correct with the
// valid channels, classify.
// A reading count that does not match the voting configuration is an
// error. A singular correction is not: it is reported in Output.CorrectErr.
func (c *Computer) Step(rec sensors.Record) (out Output, err error) {
	t0 := time.Now()
	defer c.m.step.UpdateSince(t0)
	c.m.steps.Inc(1)

	accVar, accelOK, err := c.voteAxes(c.accel, rec.Accel, &c.lastAccel, c.cfg.Noise.Accel)
	if err != nil {
		return out, fmt.Errorf("flight: accel: %w", err)
	}
	gyrVar, _, err := c.voteAxes(c.gyro, rec.Gyro, &c.lastGyro, c.cfg.Noise.Gyro)
	if err != nil {
		return out, fmt.Errorf("flight: gyro: %w", err)
	}
	baro, err := c.voteBaro(rec)
	if err != nil {
		return out, fmt.Errorf("flight: baro: %w", err)
	}

	if !c.started {
		if err := c.start(rec, accelOK); err != nil {
			return out, err
		}
		c.started = true
	} else {
		if err := c.kf.Predict(c.control(), c.pm, c.processNoise(accVar, gyrVar)); err != nil {
			return out, fmt.Errorf("flight: predict: %w", err)
		}
		c.m.predicts.Inc(1)
	}

	out.CorrectErr, err = c.correct(rec, baro)
	if err != nil {
		return out, err
	}

	out.T = rec.T
	out.Accel, out.Gyro = c.lastAccel, c.lastGyro
	out.Variances = c.kf.Variances()
	out.Altitude = c.altitude()
	if c.full {
		out.Nav, _ = ahrs.NewNavState(c.kf.State())
		out.ClimbRate = out.Nav.ClimbRate()
	}

	a := math.Sqrt(c.lastAccel[0]*c.lastAccel[0] + c.lastAccel[1]*c.lastAccel[1] + c.lastAccel[2]*c.lastAccel[2])
	if ev, ok := c.machine.Update(rec.T, a, out.Altitude); ok {
		c.m.events.Inc(1)
		log.Printf("flight: %s\n", ev)
		out.Event = &ev
	}
	out.Phase = c.machine.Phase()
	return out, nil
}

// correct builds the measurement vector from the channels that are valid
// and due, and corrects the filter with them. A singular correction is
// returned as the first value and leaves the prediction in place.
func (c *Computer) correct(rec sensors.Record, baro voting.Result) (singular error, err error) {
	n := len(c.names)
	z := make([]float64, n)
	mask := make([]bool, n)
	baroVar := c.cfg.Noise.Baro

	c.adoptOrigin(rec)
	if rec.GPSValid && c.haveOrigin && due(&c.lastGPS, c.cfg.Rates.GPS, rec.T) {
		ned := c.origin.ToNED(rec.GPS.Lat, rec.GPS.Lon, rec.GPS.Alt)
		if c.full {
			copy(z[ahrs.ChanGPSN:], ned[:])
			mask[ahrs.ChanGPSN], mask[ahrs.ChanGPSE], mask[ahrs.ChanGPSD] = true, true, true
		} else {
			z[ahrs.AltChanGPS], mask[ahrs.AltChanGPS] = -ned[2], true
		}
	}

	if baro.Valid() {
		if !c.haveBaro {
			c.baroRef = baro.Value - c.altitude()
			c.haveBaro = true
		} else if due(&c.lastBaro, c.cfg.Rates.Baro, rec.T) {
			h := baro.Value - c.baroRef
			baroVar = baro.Variance
			if c.full {
				z[ahrs.ChanBaro], mask[ahrs.ChanBaro] = -h, true
			} else {
				z[ahrs.AltChanBaro], mask[ahrs.AltChanBaro] = h, true
			}
		}
	}

	if c.full && rec.MagValid && due(&c.lastMag, c.cfg.Rates.Mag, rec.T) {
		copy(z[ahrs.ChanMagX:], rec.Mag[:])
		mask[ahrs.ChanMagX], mask[ahrs.ChanMagY], mask[ahrs.ChanMagZ] = true, true, true
	}

	use := false
	for _, ok := range mask {
		use = use || ok
	}
	if !use {
		return nil, nil
	}

	err = c.kf.Correct(ekf.Compact(z, mask), ekf.Select(c.om, mask), c.measurementNoise(baroVar))
	if errors.Is(err, ekf.ErrSingular) {
		c.m.singular.Inc(1)
		log.Printf("flight: correction at t=%.3f s skipped: %v\n", rec.T, err)
		return err, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flight: correct: %w", err)
	}
	c.m.corrects.Inc(1)

	y := c.kf.Innovation()
	k := 0
	for i, ok := range mask {
		if !ok {
			continue
		}
		_, mean, variance := c.innov[i].Add(y[k])
		c.m.innovMean[i].Update(mean)
		c.m.innovVar[i].Update(variance)
		k++
	}
	return nil, nil
}
